package store

import (
	"context"
	"time"

	"qms/patient-queue/internal/models"
)

type EnqueueInput struct {
	PatientID   string
	PatientName string
	Condition   string
	Priority    models.Priority
	Notes       *string
	ArrivalTime time.Time
}

type AssignInput struct {
	EntryID    string
	Assignee   string
	OccurredAt time.Time
}

type CompleteInput struct {
	EntryID string
	// ExpectedAssignee, when set, must equal the entry's assignee at write
	// time ("" for an unassigned entry). Nil skips the check.
	ExpectedAssignee *string
	OccurredAt       time.Time
}

// QueueStore owns every queue entry. Status preconditions are enforced here;
// viewer identity is not.
type QueueStore interface {
	Load(ctx context.Context) ([]models.QueueEntry, error)
	Enqueue(ctx context.Context, input EnqueueInput) (models.QueueEntry, error)
	AssignSelf(ctx context.Context, input AssignInput) (models.QueueEntry, error)
	MarkComplete(ctx context.Context, input CompleteInput) (models.QueueEntry, error)
	GetAll(ctx context.Context) ([]models.QueueEntry, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error)
	ListEntryEvents(ctx context.Context, entryID string) ([]EntryEvent, error)
}

// CheckEnqueueInput rejects inputs that would break entry invariants. Field
// level messages are produced earlier by intake validation.
func CheckEnqueueInput(input EnqueueInput) error {
	if input.PatientID == "" || input.PatientName == "" || input.Condition == "" {
		return ErrInvalidEntry
	}
	if !input.Priority.Valid() {
		return ErrInvalidEntry
	}
	return nil
}

// CheckLoaded validates a hydrated entry set before it replaces store state.
func CheckLoaded(entries []models.QueueEntry) error {
	ids := make(map[string]struct{}, len(entries))
	numbers := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ID == "" || entry.QueueNumber <= 0 {
			return ErrInvalidEntry
		}
		if !entry.Priority.Valid() || !entry.Status.Valid() {
			return ErrInvalidEntry
		}
		if entry.Status == models.StatusProcessing && entry.Assignee() == "" {
			return ErrInvalidEntry
		}
		if _, ok := ids[entry.ID]; ok {
			return ErrDuplicateEntry
		}
		if _, ok := numbers[entry.QueueNumber]; ok {
			return ErrDuplicateEntry
		}
		ids[entry.ID] = struct{}{}
		numbers[entry.QueueNumber] = struct{}{}
	}
	return nil
}

func MaxQueueNumber(entries []models.QueueEntry) int {
	max := 0
	for _, entry := range entries {
		if entry.QueueNumber > max {
			max = entry.QueueNumber
		}
	}
	return max
}
