package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/source"
	"qms/patient-queue/internal/store"
)

var fixedNow = time.Date(2026, 2, 9, 10, 30, 0, 0, time.UTC)

func newTestStore(entries ...models.QueueEntry) *Store {
	return NewStore(source.Static{Entries: entries}, Options{Now: func() time.Time { return fixedNow }})
}

func draft(name string) store.EnqueueInput {
	return store.EnqueueInput{
		PatientID:   "101",
		PatientName: name,
		Condition:   "Fever",
		Priority:    models.PriorityNormal,
	}
}

func TestEnqueueIntoEmptyStore(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()

	entry, err := st.Enqueue(ctx, draft("John Doe"))
	require.NoError(t, err)

	assert.Equal(t, 1, entry.QueueNumber)
	assert.Equal(t, models.StatusWaiting, entry.Status)
	assert.Equal(t, fixedNow, entry.ArrivalTime)
	assert.NotEmpty(t, entry.ID)
	assert.Nil(t, entry.AssignedDoctor)
}

func TestEnqueueNumbersAreUniqueAndMonotonic(t *testing.T) {
	st := newTestStore(models.QueueEntry{ID: "seed", QueueNumber: 41, Priority: models.PriorityNormal, Status: models.StatusCompleted, AssignedDoctor: models.StringPtr("Dr. Brown")})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		before, err := st.GetAll(ctx)
		require.NoError(t, err)
		entry, err := st.Enqueue(ctx, draft("Patient"))
		require.NoError(t, err)
		assert.Equal(t, store.MaxQueueNumber(before)+1, entry.QueueNumber)
		assert.False(t, seen[entry.QueueNumber])
		seen[entry.QueueNumber] = true
	}

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 21)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].QueueNumber, all[i-1].QueueNumber, "insertion order")
	}
}

func TestConcurrentEnqueueNeverSharesNumber(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	numbers := make(chan int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := st.Enqueue(ctx, draft("Patient"))
			if err == nil {
				numbers <- entry.QueueNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, 50)
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	st := newTestStore()
	input := draft("John Doe")
	input.Priority = "low"

	_, err := st.Enqueue(context.Background(), input)
	assert.ErrorIs(t, err, store.ErrInvalidEntry)

	all, _ := st.GetAll(context.Background())
	assert.Empty(t, all)
}

func TestAssignSelfThenSecondClinicianFails(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	entry, err := st.Enqueue(ctx, draft("John Doe"))
	require.NoError(t, err)

	assigned, err := st.AssignSelf(ctx, store.AssignInput{EntryID: entry.ID, Assignee: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, assigned.Status)
	assert.Equal(t, "A", assigned.Assignee())

	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: entry.ID, Assignee: "B"})
	assert.ErrorIs(t, err, store.ErrAlreadyAssigned)

	current, err := st.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, current.Status)
	assert.Equal(t, "A", current.Assignee())
}

func TestConcurrentAssignSelfHasOneWinner(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	entry, err := st.Enqueue(ctx, draft("John Doe"))
	require.NoError(t, err)

	const contenders = 16
	var wg sync.WaitGroup
	errs := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.AssignSelf(ctx, store.AssignInput{EntryID: entry.ID, Assignee: string(rune('A' + i))})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, store.ErrAlreadyAssigned)
	}
	assert.Equal(t, 1, wins)
}

func TestMarkCompleteChecksStatusOnly(t *testing.T) {
	st := newTestStore(models.QueueEntry{
		ID: "3", PatientID: "103", PatientName: "Michael Smith", QueueNumber: 3,
		Condition: "Ankle injury", Priority: models.PriorityNormal,
		Status: models.StatusProcessing, AssignedDoctor: models.StringPtr("Dr. Brown"),
	})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	completed, err := st.MarkComplete(ctx, store.CompleteInput{EntryID: "3"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.Equal(t, "Dr. Brown", completed.Assignee())

	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: "3"})
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestTransitionsRejectWrongStates(t *testing.T) {
	st := newTestStore(
		models.QueueEntry{ID: "w", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
		models.QueueEntry{ID: "c", QueueNumber: 2, Priority: models.PriorityNormal, Status: models.StatusCancelled},
		models.QueueEntry{ID: "d", QueueNumber: 3, Priority: models.PriorityNormal, Status: models.StatusCompleted, AssignedDoctor: models.StringPtr("Dr. X")},
	)
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: "w"})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: "c", Assignee: "Dr. Y"})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: "d", Assignee: "Dr. Y"})
	assert.ErrorIs(t, err, store.ErrAlreadyAssigned)
	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: "missing", Assignee: "Dr. Y"})
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: "missing"})
	assert.ErrorIs(t, err, store.ErrEntryNotFound)

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, all[0].Status)
	assert.Equal(t, models.StatusCancelled, all[1].Status)
	assert.Equal(t, "Dr. X", all[2].Assignee())
}

type flakySource struct {
	entries []models.QueueEntry
	err     error
}

func (f *flakySource) Fetch(ctx context.Context) ([]models.QueueEntry, error) {
	return f.entries, f.err
}

func TestLoadFailureKeepsPriorState(t *testing.T) {
	src := &flakySource{entries: []models.QueueEntry{
		{ID: "1", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
	}}
	st := NewStore(src, Options{})
	ctx := context.Background()

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	src.err = errors.New("connection refused")
	_, err = st.Load(ctx)
	assert.ErrorIs(t, err, store.ErrLoadFailed)

	src.err = nil
	src.entries = []models.QueueEntry{
		{ID: "1", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
		{ID: "2", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
	}
	_, err = st.Load(ctx)
	assert.ErrorIs(t, err, store.ErrLoadFailed)
	assert.ErrorIs(t, err, store.ErrDuplicateEntry)

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1", all[0].ID)
}

func TestGetAllReturnsCopies(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	entry, err := st.Enqueue(ctx, store.EnqueueInput{PatientID: "1", PatientName: "Ann", Condition: "Cut", Priority: models.PriorityUrgent, Notes: models.StringPtr("left hand")})
	require.NoError(t, err)

	all, _ := st.GetAll(ctx)
	*all[0].Notes = "mutated"
	all[0].Status = models.StatusCancelled

	again, err := st.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "left hand", *again.Notes)
	assert.Equal(t, models.StatusWaiting, again.Status)
}

func TestEntryEventsRecordLifecycle(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	entry, err := st.Enqueue(ctx, draft("John Doe"))
	require.NoError(t, err)
	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: entry.ID, Assignee: "Dr. Brown"})
	require.NoError(t, err)
	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: entry.ID})
	require.NoError(t, err)

	events, err := st.ListEntryEvents(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, store.EventEntryCreated, events[0].Type)
	assert.Equal(t, store.EventEntryAssigned, events[1].Type)
	assert.Equal(t, store.EventEntryCompleted, events[2].Type)
	require.NoError(t, store.VerifyEntryEvents(events))

	replayed, err := store.RehydrateEntry(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, replayed.Status)

	_, err = st.ListEntryEvents(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestReloadNeverRollsBackLiveProgress(t *testing.T) {
	src := &flakySource{entries: []models.QueueEntry{
		{ID: "1", PatientID: "101", PatientName: "John Doe", QueueNumber: 1, Condition: "Fever", Priority: models.PriorityNormal, Status: models.StatusWaiting},
		{ID: "3", PatientID: "103", PatientName: "Michael Smith", QueueNumber: 3, Condition: "Ankle injury", Priority: models.PriorityNormal,
			Status: models.StatusProcessing, AssignedDoctor: models.StringPtr("Dr. Williams")},
		{ID: "4", PatientID: "104", PatientName: "Emily Davis", QueueNumber: 4, Condition: "Rash", Priority: models.PriorityUrgent, Status: models.StatusWaiting},
	}}
	st := NewStore(src, Options{Now: func() time.Time { return fixedNow }})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: "3"})
	require.NoError(t, err)
	_, err = st.AssignSelf(ctx, store.AssignInput{EntryID: "1", Assignee: "Dr. Brown"})
	require.NoError(t, err)
	added, err := st.Enqueue(ctx, draft("Walk In"))
	require.NoError(t, err)

	// The source still lists 1 and 3 at their old statuses and drops 4.
	src.entries = src.entries[:2]
	_, err = st.Load(ctx)
	require.NoError(t, err)

	done, err := st.GetEntry(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	taken, err := st.GetEntry(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, taken.Status)
	assert.Equal(t, "Dr. Brown", taken.Assignee())

	kept, err := st.GetEntry(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, kept.QueueNumber)
	_, err = st.GetEntry(ctx, "4")
	assert.ErrorIs(t, err, store.ErrEntryNotFound)

	events, err := st.ListEntryEvents(ctx, "3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventEntryCompleted, events[0].Type)
}

func TestReloadAcceptsForwardProgressFromSource(t *testing.T) {
	src := &flakySource{entries: []models.QueueEntry{
		{ID: "1", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
	}}
	st := NewStore(src, Options{})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	src.entries = []models.QueueEntry{
		{ID: "1", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusCancelled},
	}
	_, err = st.Load(ctx)
	require.NoError(t, err)

	entry, err := st.GetEntry(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, entry.Status)
}

func TestMarkCompleteWithExpectedAssignee(t *testing.T) {
	st := newTestStore(models.QueueEntry{
		ID: "3", PatientID: "103", PatientName: "Michael Smith", QueueNumber: 3,
		Condition: "Ankle injury", Priority: models.PriorityNormal,
		Status: models.StatusProcessing, AssignedDoctor: models.StringPtr("Dr. Brown"),
	})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	stale := ""
	_, err = st.MarkComplete(ctx, store.CompleteInput{EntryID: "3", ExpectedAssignee: &stale})
	assert.ErrorIs(t, err, store.ErrAssigneeChanged)
	assert.True(t, store.IsPreconditionFailed(err))
	entry, err := st.GetEntry(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, entry.Status)

	brown := "Dr. Brown"
	done, err := st.MarkComplete(ctx, store.CompleteInput{EntryID: "3", ExpectedAssignee: &brown})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestReloadDoesNotReuseDroppedNumbers(t *testing.T) {
	src := &flakySource{entries: []models.QueueEntry{
		{ID: "1", QueueNumber: 1, Priority: models.PriorityNormal, Status: models.StatusWaiting},
		{ID: "9", QueueNumber: 9, Priority: models.PriorityNormal, Status: models.StatusWaiting},
	}}
	st := NewStore(src, Options{})
	ctx := context.Background()
	_, err := st.Load(ctx)
	require.NoError(t, err)

	src.entries = src.entries[:1]
	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.MaxQueueNumber(loaded))

	entry, err := st.Enqueue(ctx, draft("After Reload"))
	require.NoError(t, err)
	assert.Equal(t, 10, entry.QueueNumber)
}
