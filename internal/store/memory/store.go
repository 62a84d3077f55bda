// Package memory is the in-process queue store used for a single deployment
// hydrated from a fixture source.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/source"
	"qms/patient-queue/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	source  source.Source
	entries []models.QueueEntry
	index   map[string]int
	events  map[string][]store.EntryEvent
	// maxNumber only grows, so queue numbers are never reused.
	maxNumber int
	now       func() time.Time
}

type Options struct {
	Now func() time.Time
}

func NewStore(src source.Source, options Options) *Store {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	if src == nil {
		src = source.Static{}
	}
	return &Store{
		source: src,
		index:  make(map[string]int),
		events: make(map[string][]store.EntryEvent),
		now:    now,
	}
}

// Load rehydrates the store from its source. A known entry keeps its live
// state when the source copy would move it backwards, and entries enqueued
// here since the last load are kept. On any failure the previous state is
// kept untouched.
func (s *Store) Load(ctx context.Context) ([]models.QueueEntry, error) {
	fetched, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrLoadFailed, err)
	}
	if err := store.CheckLoaded(fetched); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrLoadFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.merge(fetched)
	if err := store.CheckLoaded(entries); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrLoadFailed, err)
	}
	index := make(map[string]int, len(entries))
	events := make(map[string][]store.EntryEvent, len(entries))
	for i, entry := range entries {
		index[entry.ID] = i
		if chain, ok := s.events[entry.ID]; ok {
			events[entry.ID] = chain
		}
	}

	s.entries = entries
	s.index = index
	s.events = events
	if max := store.MaxQueueNumber(entries); max > s.maxNumber {
		s.maxNumber = max
	}
	return cloneAll(entries), nil
}

// merge must be called with s.mu held.
func (s *Store) merge(fetched []models.QueueEntry) []models.QueueEntry {
	entries := make([]models.QueueEntry, 0, len(fetched))
	seen := make(map[string]bool, len(fetched))
	for _, entry := range fetched {
		seen[entry.ID] = true
		if pos, ok := s.index[entry.ID]; ok && store.Regresses(s.entries[pos].Status, entry.Status) {
			entries = append(entries, s.entries[pos].Clone())
			continue
		}
		entries = append(entries, entry.Clone())
	}
	for _, entry := range s.entries {
		if seen[entry.ID] {
			continue
		}
		if chain := s.events[entry.ID]; len(chain) > 0 && chain[0].Type == store.EventEntryCreated {
			entries = append(entries, entry.Clone())
		}
	}
	return entries
}

func (s *Store) Enqueue(ctx context.Context, input store.EnqueueInput) (models.QueueEntry, error) {
	if err := store.CheckEnqueueInput(input); err != nil {
		return models.QueueEntry{}, err
	}
	arrival := input.ArrivalTime
	if arrival.IsZero() {
		arrival = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.QueueEntry{
		ID:          uuid.NewString(),
		PatientID:   input.PatientID,
		PatientName: input.PatientName,
		QueueNumber: s.maxNumber + 1,
		ArrivalTime: arrival,
		Condition:   input.Condition,
		Priority:    input.Priority,
		Status:      models.StatusWaiting,
	}
	if input.Notes != nil {
		entry.Notes = models.StringPtr(*input.Notes)
	}
	if err := s.appendEvent(store.EventEntryCreated, entry, arrival); err != nil {
		return models.QueueEntry{}, err
	}

	s.maxNumber = entry.QueueNumber
	s.index[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return entry.Clone(), nil
}

func (s *Store) AssignSelf(ctx context.Context, input store.AssignInput) (models.QueueEntry, error) {
	if input.Assignee == "" {
		return models.QueueEntry{}, store.ErrInvalidEntry
	}
	return s.transition(store.ActionAssignSelf, input.EntryID, input.OccurredAt, nil, func(entry *models.QueueEntry) {
		entry.AssignedDoctor = models.StringPtr(input.Assignee)
	}, store.EventEntryAssigned)
}

func (s *Store) MarkComplete(ctx context.Context, input store.CompleteInput) (models.QueueEntry, error) {
	var check func(models.QueueEntry) error
	if input.ExpectedAssignee != nil {
		expected := *input.ExpectedAssignee
		check = func(entry models.QueueEntry) error {
			if entry.Assignee() != expected {
				return store.ErrAssigneeChanged
			}
			return nil
		}
	}
	return s.transition(store.ActionComplete, input.EntryID, input.OccurredAt, check, nil, store.EventEntryCompleted)
}

// transition is the compare-and-set shared by every status change: the
// status check, the optional extra check and the write happen under one lock.
func (s *Store) transition(action, entryID string, occurredAt time.Time, check func(models.QueueEntry) error, mutate func(*models.QueueEntry), eventType string) (models.QueueEntry, error) {
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	current := s.entries[pos]
	if !store.ValidTransition(action, current.Status) {
		return models.QueueEntry{}, store.StateError(action, current.Status)
	}
	if check != nil {
		if err := check(current); err != nil {
			return models.QueueEntry{}, err
		}
	}

	next := current.Clone()
	next.Status = store.TargetStatus(action)
	if mutate != nil {
		mutate(&next)
	}
	if err := s.appendEvent(eventType, next, occurredAt); err != nil {
		return models.QueueEntry{}, err
	}
	s.entries[pos] = next
	return next.Clone(), nil
}

func (s *Store) GetAll(ctx context.Context) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.entries), nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return s.entries[pos].Clone(), nil
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.index[entryID]; !ok {
		return nil, store.ErrEntryNotFound
	}
	events := s.events[entryID]
	out := make([]store.EntryEvent, len(events))
	copy(out, events)
	return out, nil
}

// appendEvent must be called with s.mu held.
func (s *Store) appendEvent(eventType string, entry models.QueueEntry, at time.Time) error {
	chain := s.events[entry.ID]
	var prev *store.EntryEvent
	if len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}
	event, err := store.NewEntryEvent(prev, eventType, entry, at)
	if err != nil {
		return err
	}
	s.events[entry.ID] = append(chain, event)
	return nil
}

func cloneAll(entries []models.QueueEntry) []models.QueueEntry {
	out := make([]models.QueueEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out
}
