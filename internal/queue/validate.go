package queue

import (
	"fmt"
	"sort"
	"strings"

	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/store"
)

// Draft is the intake form as submitted.
type Draft struct {
	PatientID   string  `json:"patient_id"`
	PatientName string  `json:"patient_name"`
	Condition   string  `json:"condition"`
	Priority    string  `json:"priority"`
	Notes       *string `json:"notes,omitempty"`
}

// ValidationError carries one message per offending field, keyed by the
// field's JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateDraft trims the draft and converts it to a store input. A blank
// priority means normal.
func ValidateDraft(draft Draft) (store.EnqueueInput, error) {
	input := store.EnqueueInput{
		PatientID:   strings.TrimSpace(draft.PatientID),
		PatientName: strings.TrimSpace(draft.PatientName),
		Condition:   strings.TrimSpace(draft.Condition),
		Priority:    models.Priority(strings.TrimSpace(draft.Priority)),
	}
	if input.Priority == "" {
		input.Priority = models.PriorityNormal
	}
	if draft.Notes != nil {
		if notes := strings.TrimSpace(*draft.Notes); notes != "" {
			input.Notes = &notes
		}
	}

	fields := map[string]string{}
	if input.PatientID == "" {
		fields["patient_id"] = "Patient ID is required"
	}
	if input.PatientName == "" {
		fields["patient_name"] = "Patient name is required"
	}
	if input.Condition == "" {
		fields["condition"] = "Condition is required"
	}
	if !input.Priority.Valid() {
		fields["priority"] = "Priority must be one of normal, urgent, emergency"
	}
	if len(fields) > 0 {
		return store.EnqueueInput{}, &ValidationError{Fields: fields}
	}
	return input, nil
}
