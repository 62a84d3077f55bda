package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qms/patient-queue/internal/models"
)

const (
	EventEntryCreated   = "entry.created"
	EventEntryAssigned  = "entry.assigned"
	EventEntryCompleted = "entry.completed"
)

var ErrEventChainBroken = errors.New("entry event chain broken")

type EntryEvent struct {
	EntryID   string          `json:"entry_id"`
	EntrySeq  int             `json:"entry_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

func ComputeEntryEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// NewEntryEvent builds the next link of an entry's chain after prev (nil for
// the first event).
func NewEntryEvent(prev *EntryEvent, eventType string, entry models.QueueEntry, createdAt time.Time) (EntryEvent, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return EntryEvent{}, err
	}
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.EntrySeq + 1
		prevHash = prev.Hash
	}
	createdAt = createdAt.UTC()
	return EntryEvent{
		EntryID:   entry.ID,
		EntrySeq:  seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prevHash,
		Hash:      ComputeEntryEventHash(prevHash, entry.ID, eventType, payload, createdAt, seq),
	}, nil
}

func VerifyEntryEvents(events []EntryEvent) error {
	prev := ""
	for i, event := range events {
		if event.EntrySeq != i+1 || event.PrevHash != prev {
			return fmt.Errorf("%w: seq %d", ErrEventChainBroken, event.EntrySeq)
		}
		want := ComputeEntryEventHash(event.PrevHash, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.EntrySeq)
		if want != event.Hash {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrEventChainBroken, event.EntrySeq)
		}
		prev = event.Hash
	}
	return nil
}

func RehydrateEntry(events []EntryEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload models.QueueEntry
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueEntry{}, err
		}
		if payload.ID != "" {
			entry.ID = payload.ID
		}
		if payload.PatientID != "" {
			entry.PatientID = payload.PatientID
		}
		if payload.PatientName != "" {
			entry.PatientName = payload.PatientName
		}
		if payload.QueueNumber != 0 {
			entry.QueueNumber = payload.QueueNumber
		}
		if !payload.ArrivalTime.IsZero() {
			entry.ArrivalTime = payload.ArrivalTime
		}
		if payload.Condition != "" {
			entry.Condition = payload.Condition
		}
		if payload.Priority != "" {
			entry.Priority = payload.Priority
		}
		if payload.Status != "" {
			entry.Status = payload.Status
		}
		if payload.AssignedDoctor != nil {
			entry.AssignedDoctor = payload.AssignedDoctor
		}
		if payload.Notes != nil {
			entry.Notes = payload.Notes
		}
	}
	return entry, nil
}
