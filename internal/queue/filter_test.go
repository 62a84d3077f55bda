package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qms/patient-queue/internal/models"
)

func sampleEntries() []models.QueueEntry {
	return []models.QueueEntry{
		{ID: "1", PatientID: "101", PatientName: "John Doe", QueueNumber: 1, Condition: "Fever, Headache", Priority: models.PriorityNormal, Status: models.StatusWaiting},
		{ID: "2", PatientID: "102", PatientName: "Sarah Johnson", QueueNumber: 2, Condition: "Chest pain", Priority: models.PriorityUrgent, Status: models.StatusWaiting},
		{ID: "3", PatientID: "103", PatientName: "Michael Smith", QueueNumber: 3, Condition: "Ankle injury", Priority: models.PriorityNormal, Status: models.StatusProcessing, AssignedDoctor: models.StringPtr("Dr. Williams")},
		{ID: "4", PatientID: "104", PatientName: "Emily Davis", QueueNumber: 4, Condition: "Severe allergic reaction", Priority: models.PriorityEmergency, Status: models.StatusProcessing, AssignedDoctor: models.StringPtr("Dr. Johnson")},
		{ID: "5", PatientID: "105", PatientName: "Robert Wilson", QueueNumber: 12, Condition: "Follow-up", Priority: models.PriorityNormal, Status: models.StatusCompleted, AssignedDoctor: models.StringPtr("Dr. Brown")},
	}
}

func ids(entries []models.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.ID)
	}
	return out
}

func TestProjectPriorityOnly(t *testing.T) {
	entries := []models.QueueEntry{
		{ID: "a", Priority: models.PriorityNormal, Status: models.StatusWaiting},
		{ID: "b", Priority: models.PriorityEmergency, Status: models.StatusWaiting},
		{ID: "c", Priority: models.PriorityNormal, Status: models.StatusProcessing},
	}
	got := Project(entries, models.FilterAll, models.QueueFilter{Status: "all", Priority: "emergency"})
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestProject(t *testing.T) {
	entries := sampleEntries()
	tests := []struct {
		name   string
		tab    string
		filter models.QueueFilter
		want   []string
	}{
		{"everything", "all", models.QueueFilter{}, []string{"1", "2", "3", "4", "5"}},
		{"empty tab means all", "", models.QueueFilter{Priority: "all"}, []string{"1", "2", "3", "4", "5"}},
		{"waiting tab", "waiting", models.QueueFilter{}, []string{"1", "2"}},
		{"processing and normal", "processing", models.QueueFilter{Priority: "normal"}, []string{"3"}},
		{"cancelled tab", "cancelled", models.QueueFilter{}, []string{}},
		{"unknown priority", "all", models.QueueFilter{Priority: "critical"}, []string{}},
		{"unknown tab", "archived", models.QueueFilter{}, []string{}},
		{"search name any case", "all", models.QueueFilter{SearchTerm: "JOHN"}, []string{"1", "2"}},
		{"search condition", "all", models.QueueFilter{SearchTerm: "ankle"}, []string{"3"}},
		{"search queue number", "all", models.QueueFilter{SearchTerm: "2"}, []string{"2", "5"}},
		{"search trimmed", "all", models.QueueFilter{SearchTerm: "  allergic  "}, []string{"4"}},
		{"blank search", "all", models.QueueFilter{SearchTerm: "   "}, []string{"1", "2", "3", "4", "5"}},
		{"all filters", "waiting", models.QueueFilter{Priority: "urgent", SearchTerm: "chest"}, []string{"2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(Project(entries, tc.tab, tc.filter)))
		})
	}
}

func TestProjectIsIdempotentAndPure(t *testing.T) {
	entries := sampleEntries()
	filter := models.QueueFilter{Priority: "normal", SearchTerm: "o"}

	once := Project(entries, "all", filter)
	twice := Project(once, "all", filter)
	assert.Equal(t, once, twice)
	assert.Len(t, entries, 5)
	assert.Equal(t, "1", entries[0].ID)
}

func TestProjectedEntriesSatisfyEveryPredicate(t *testing.T) {
	entries := sampleEntries()
	for _, tab := range []string{"all", "waiting", "processing", "completed"} {
		for _, priority := range []string{"all", "normal", "urgent", "emergency"} {
			got := Project(entries, tab, models.QueueFilter{Priority: priority})
			for _, entry := range got {
				if tab != "all" {
					assert.Equal(t, tab, string(entry.Status))
				}
				if priority != "all" {
					assert.Equal(t, priority, string(entry.Priority))
				}
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleEntries())
	assert.Equal(t, Summary{Total: 5, Waiting: 2, Processing: 2, Text: "2 patients waiting, 2 in progress"}, s)

	empty := Summarize(nil)
	assert.Equal(t, "0 patients waiting, 0 in progress", empty.Text)
}
