package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/store"
)

// queueNumberLock serialises queue number allocation across sessions.
const queueNumberLock = "queue_entries.queue_number"

const entryColumns = `entry_id, patient_id, patient_name, queue_number, arrival_time, condition, priority, status, assigned_doctor, notes`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

type Options struct {
	Now func() time.Time
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}
}

// Load reads the whole queue from the database, which is its own data source.
func (s *Store) Load(ctx context.Context) ([]models.QueueEntry, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrLoadFailed, err)
	}
	if err := store.CheckLoaded(entries); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrLoadFailed, err)
	}
	return entries, nil
}

func (s *Store) Enqueue(ctx context.Context, input store.EnqueueInput) (models.QueueEntry, error) {
	if err := store.CheckEnqueueInput(input); err != nil {
		return models.QueueEntry{}, err
	}
	arrival := input.ArrivalTime
	if arrival.IsZero() {
		arrival = s.now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	number, err := nextQueueNumber(ctx, tx)
	if err != nil {
		return models.QueueEntry{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			entry_id, patient_id, patient_name, queue_number, arrival_time,
			condition, priority, status, notes, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$5)
		RETURNING `+entryColumns,
		uuid.NewString(), input.PatientID, input.PatientName, number, arrival,
		input.Condition, string(input.Priority), string(models.StatusWaiting), input.Notes)
	entry, err := scanEntry(row)
	if err != nil {
		return models.QueueEntry{}, err
	}

	if err = insertEntryEvent(ctx, tx, store.EventEntryCreated, entry, arrival); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) AssignSelf(ctx context.Context, input store.AssignInput) (models.QueueEntry, error) {
	if input.Assignee == "" {
		return models.QueueEntry{}, store.ErrInvalidEntry
	}
	assignee := input.Assignee
	return s.updateEntryStatus(ctx, store.ActionAssignSelf, input.EntryID, &assignee, nil, input.OccurredAt, store.EventEntryAssigned)
}

func (s *Store) MarkComplete(ctx context.Context, input store.CompleteInput) (models.QueueEntry, error) {
	return s.updateEntryStatus(ctx, store.ActionComplete, input.EntryID, nil, input.ExpectedAssignee, input.OccurredAt, store.EventEntryCompleted)
}

func (s *Store) GetAll(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM queue_entries ORDER BY insert_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.QueueEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE entry_id = $1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	if _, err := s.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, entry_seq, type, payload, created_at, prev_hash, hash
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY entry_seq
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.EntryEvent
	for rows.Next() {
		var event store.EntryEvent
		var payload []byte
		if err := rows.Scan(&event.EntryID, &event.EntrySeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Import inserts entries that are not yet stored, keeping their ids and
// queue numbers. Used to seed a fresh database from a fixture.
func (s *Store) Import(ctx context.Context, entries []models.QueueEntry) (int, error) {
	if err := store.CheckLoaded(entries); err != nil {
		return 0, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, entry := range entries {
		tag, err := tx.Exec(ctx, `
			INSERT INTO queue_entries (
				entry_id, patient_id, patient_name, queue_number, arrival_time,
				condition, priority, status, assigned_doctor, notes
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT DO NOTHING
		`, entry.ID, entry.PatientID, entry.PatientName, entry.QueueNumber, nullIfZeroTime(entry.ArrivalTime),
			entry.Condition, string(entry.Priority), string(entry.Status), entry.AssignedDoctor, entry.Notes)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		if err := insertEntryEvent(ctx, tx, store.EventEntryCreated, entry, s.now()); err != nil {
			return 0, err
		}
		inserted++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// updateEntryStatus applies action as one conditional UPDATE, so concurrent
// callers racing on the same entry see exactly one success. A non-nil
// expectedAssignee is part of the condition.
func (s *Store) updateEntryStatus(ctx context.Context, action, entryID string, assignee, expectedAssignee *string, occurredAt time.Time, eventType string) (models.QueueEntry, error) {
	fromStatus := store.RequiredStatus(action)
	toStatus := store.TargetStatus(action)
	if fromStatus == "" || toStatus == "" {
		return models.QueueEntry{}, store.ErrInvalidState
	}
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $1,
		    assigned_doctor = COALESCE($2, assigned_doctor),
		    updated_at = $3
		WHERE entry_id = $4 AND status = $5
		  AND ($6::text IS NULL OR COALESCE(assigned_doctor, '') = $6)
		RETURNING `+entryColumns,
		string(toStatus), assignee, occurredAt, entryID, string(fromStatus), expectedAssignee)
	entry, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, err
		}
		status, exists, err := loadEntryStatus(ctx, tx, entryID)
		if err != nil {
			return models.QueueEntry{}, err
		}
		if !exists {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		if status == fromStatus && expectedAssignee != nil {
			return models.QueueEntry{}, store.ErrAssigneeChanged
		}
		return models.QueueEntry{}, store.StateError(action, status)
	}

	if err = insertEntryEvent(ctx, tx, eventType, entry, occurredAt); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func nextQueueNumber(ctx context.Context, tx pgx.Tx) (int, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, queueNumberLock); err != nil {
		return 0, err
	}
	var max int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(queue_number), 0) FROM queue_entries`).Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}

func insertEntryEvent(ctx context.Context, tx pgx.Tx, eventType string, entry models.QueueEntry, createdAt time.Time) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.ID); err != nil {
		return err
	}

	var prev *store.EntryEvent
	var last store.EntryEvent
	row := tx.QueryRow(ctx, `
		SELECT entry_seq, hash
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY entry_seq DESC
		LIMIT 1
	`, entry.ID)
	switch err := row.Scan(&last.EntrySeq, &last.Hash); {
	case err == nil:
		prev = &last
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	// Postgres keeps microseconds; truncate so the stored timestamp hashes
	// the same when the chain is verified later.
	event, err := store.NewEntryEvent(prev, eventType, entry, createdAt.Truncate(time.Microsecond))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO entry_events (entry_id, entry_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.EntryID, event.EntrySeq, event.Type, string(event.Payload), event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

func loadEntryStatus(ctx context.Context, tx pgx.Tx, entryID string) (models.Status, bool, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM queue_entries WHERE entry_id = $1`, entryID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return models.Status(status), true, nil
}

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var arrival sql.NullTime
	var priority, status string
	var assigned, notes sql.NullString
	if err := row.Scan(&entry.ID, &entry.PatientID, &entry.PatientName, &entry.QueueNumber, &arrival,
		&entry.Condition, &priority, &status, &assigned, &notes); err != nil {
		return models.QueueEntry{}, err
	}
	if arrival.Valid {
		entry.ArrivalTime = arrival.Time.UTC()
	}
	entry.Priority = models.Priority(priority)
	entry.Status = models.Status(status)
	entry.AssignedDoctor = nullStringPtr(assigned)
	entry.Notes = nullStringPtr(notes)
	return entry, nil
}

func nullIfZeroTime(value time.Time) interface{} {
	if value.IsZero() {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
