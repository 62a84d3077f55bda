package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qms/patient-queue/internal/hub"
	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/metrics"
	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/patients"
	"qms/patient-queue/internal/store"
)

const tracerName = "qms/patient-queue/queue"

// Service applies viewer actions to the queue store and announces every
// successful mutation on the hub.
type Service struct {
	store    store.QueueStore
	patients patients.Directory
	hub      *hub.Hub
	metrics  *metrics.Collector
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Options struct {
	Patients patients.Directory
	Hub      *hub.Hub
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Result is a mutated entry plus the confirmation shown to the viewer.
type Result struct {
	Entry   models.QueueEntry `json:"entry"`
	Message string            `json:"message"`
}

// Listing is one viewer's projection of the queue.
type Listing struct {
	Tab     string             `json:"tab"`
	Filter  models.QueueFilter `json:"filter"`
	Entries []EntryView        `json:"entries"`
	Summary Summary            `json:"summary"`
	Empty   string             `json:"empty_message,omitempty"`
}

func NewService(st store.QueueStore, options Options) *Service {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	h := options.Hub
	if h == nil {
		h = hub.New(options.Logger)
	}
	patientDir := options.Patients
	if patientDir == nil {
		patientDir = patients.NewMemory(nil)
	}
	return &Service{
		store:    st,
		patients: patientDir,
		hub:      h,
		metrics:  options.Metrics,
		logger:   options.Logger,
		tracer:   otel.Tracer(tracerName),
		now:      now,
	}
}

func (s *Service) Hub() *hub.Hub { return s.hub }

func (s *Service) Now() time.Time { return s.now() }

// Load rehydrates the store from its data source. On failure the previous
// entries stay in place and open views are told they are stale.
func (s *Service) Load(ctx context.Context) ([]models.QueueEntry, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Load")
	defer span.End()

	entries, err := s.store.Load(ctx)
	if err != nil {
		s.fail(span, "load", err)
		s.hub.Publish(hub.Change{Type: hub.ChangeLoadFailed, Error: err.Error(), At: s.now().UTC()})
		return nil, err
	}
	span.SetAttributes(attribute.Int("queue.entries", len(entries)))
	s.metrics.RecordMutation("load", "ok")
	s.metrics.ObserveEntries(entries)
	s.logger.Info().Int("entries", len(entries)).Msg("queue loaded")
	s.hub.Publish(hub.Change{Type: hub.ChangeQueueReloaded, At: s.now().UTC()})
	return entries, nil
}

// Reload is Load on behalf of a viewer, who must be front-desk staff.
func (s *Service) Reload(ctx context.Context, viewer identity.Viewer) ([]models.QueueEntry, error) {
	if !CanReload(viewer) {
		err := fmt.Errorf("%w: role %q cannot reload the queue", ErrNotEligible, viewer.Role)
		s.metrics.RecordMutation("load", ErrorCode(err))
		s.logger.Warn().Err(err).Str("operation", "load").Msg("queue operation rejected")
		return nil, err
	}
	return s.Load(ctx)
}

func (s *Service) Snapshot(ctx context.Context) ([]models.QueueEntry, error) {
	return s.store.GetAll(ctx)
}

// List projects the snapshot for tab and filter and presents it for viewer.
func (s *Service) List(ctx context.Context, viewer identity.Viewer, tab string, filter models.QueueFilter) (Listing, error) {
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return Listing{}, err
	}
	return BuildListing(entries, viewer, tab, filter, s.now()), nil
}

// BuildListing is the pure part of List, shared with viewing sessions.
func BuildListing(entries []models.QueueEntry, viewer identity.Viewer, tab string, filter models.QueueFilter, now time.Time) Listing {
	if tab == "" {
		tab = models.FilterAll
	}
	projected := Project(entries, tab, filter)
	listing := Listing{
		Tab:     tab,
		Filter:  filter,
		Entries: PresentAll(projected, viewer, now),
		Summary: Summarize(projected),
	}
	if len(projected) == 0 {
		listing.Empty = "No patients in queue"
	}
	return listing
}

func (s *Service) Enqueue(ctx context.Context, viewer identity.Viewer, draft Draft) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Enqueue")
	defer span.End()

	if !CanEnqueue(viewer) {
		err := fmt.Errorf("%w: role %q cannot add patients", ErrNotEligible, viewer.Role)
		s.fail(span, "enqueue", err)
		return Result{}, err
	}
	s.prefillName(ctx, &draft)

	input, err := ValidateDraft(draft)
	if err != nil {
		s.fail(span, "enqueue", err)
		return Result{}, err
	}
	input.ArrivalTime = s.now().UTC()

	entry, err := s.store.Enqueue(ctx, input)
	if err != nil {
		s.fail(span, "enqueue", err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("queue.entry_id", entry.ID), attribute.Int("queue.number", entry.QueueNumber))
	s.succeed(ctx, "enqueue", hub.ChangeEntryCreated, "", entry)
	return Result{
		Entry:   entry,
		Message: fmt.Sprintf("%s has been added with queue number %d.", entry.PatientName, entry.QueueNumber),
	}, nil
}

func (s *Service) AssignSelf(ctx context.Context, viewer identity.Viewer, entryID string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "queue.AssignSelf", trace.WithAttributes(attribute.String("queue.entry_id", entryID)))
	defer span.End()

	if viewer.Role != identity.RoleClinician {
		err := fmt.Errorf("%w: only clinicians can take patients", ErrNotEligible)
		s.fail(span, "assign_self", err)
		return Result{}, err
	}

	entry, err := s.store.AssignSelf(ctx, store.AssignInput{
		EntryID:    entryID,
		Assignee:   viewer.AssigneeName(),
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.fail(span, "assign_self", err)
		return Result{}, err
	}
	s.succeed(ctx, "assign_self", hub.ChangeEntryAssigned, models.StatusWaiting, entry)
	return Result{
		Entry:   entry,
		Message: fmt.Sprintf("You have been assigned to %s.", entry.PatientName),
	}, nil
}

// MarkComplete requires a clinician who is the entry's assignee. Status is
// left to the store so a wrong-state attempt reports invalid_state; the
// assignee seen here is passed along so a concurrent reassignment fails the
// write instead of completing someone else's patient.
func (s *Service) MarkComplete(ctx context.Context, viewer identity.Viewer, entryID string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "queue.MarkComplete", trace.WithAttributes(attribute.String("queue.entry_id", entryID)))
	defer span.End()

	if viewer.Role != identity.RoleClinician {
		err := fmt.Errorf("%w: only clinicians can complete visits", ErrNotEligible)
		s.fail(span, "mark_complete", err)
		return Result{}, err
	}
	current, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		s.fail(span, "mark_complete", err)
		return Result{}, err
	}
	if current.Status == models.StatusProcessing && !IsAssignedTo(current, viewer) {
		err := fmt.Errorf("%w: entry is assigned to %s", ErrNotEligible, current.Assignee())
		s.fail(span, "mark_complete", err)
		return Result{}, err
	}

	expected := current.Assignee()
	entry, err := s.store.MarkComplete(ctx, store.CompleteInput{
		EntryID:          entryID,
		ExpectedAssignee: &expected,
		OccurredAt:       s.now().UTC(),
	})
	if errors.Is(err, store.ErrAssigneeChanged) {
		err = fmt.Errorf("%w: %w", ErrNotEligible, err)
	}
	if err != nil {
		s.fail(span, "mark_complete", err)
		return Result{}, err
	}
	s.succeed(ctx, "mark_complete", hub.ChangeEntryCompleted, models.StatusProcessing, entry)
	return Result{
		Entry:   entry,
		Message: fmt.Sprintf("%s's visit has been marked as completed.", entry.PatientName),
	}, nil
}

func (s *Service) Events(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	return s.store.ListEntryEvents(ctx, entryID)
}

// PatientLink is where a viewer is sent to see the entry's patient record.
func (s *Service) PatientLink(ctx context.Context, viewer identity.Viewer, entryID string) (string, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return "", err
	}
	if !Can(viewer, entry, ActionViewPatient) {
		return "", ErrNotEligible
	}
	return "/patients/" + entry.PatientID, nil
}

func (s *Service) Patients(ctx context.Context) ([]models.Patient, error) {
	return s.patients.List(ctx)
}

func (s *Service) prefillName(ctx context.Context, draft *Draft) {
	if strings.TrimSpace(draft.PatientName) != "" || strings.TrimSpace(draft.PatientID) == "" {
		return
	}
	patient, err := s.patients.Lookup(ctx, strings.TrimSpace(draft.PatientID))
	if err != nil {
		return
	}
	draft.PatientName = patient.Name
}

func (s *Service) succeed(ctx context.Context, operation, changeType string, from models.Status, entry models.QueueEntry) {
	s.metrics.RecordMutation(operation, "ok")
	s.logger.Info().
		Str("operation", operation).
		Str("entry_id", entry.ID).
		Int("queue_number", entry.QueueNumber).
		Str("status", string(entry.Status)).
		Msg("queue mutation applied")

	published := entry.Clone()
	s.hub.Publish(hub.Change{
		Type:    changeType,
		EntryID: entry.ID,
		From:    from,
		To:      entry.Status,
		Entry:   &published,
		At:      s.now().UTC(),
	})

	if entries, err := s.store.GetAll(ctx); err == nil {
		s.metrics.ObserveEntries(entries)
	}
}

func (s *Service) fail(span trace.Span, operation string, err error) {
	code := ErrorCode(err)
	s.metrics.RecordMutation(operation, code)
	span.RecordError(err)
	span.SetStatus(codes.Error, code)

	event := s.logger.Warn()
	if code == "internal_error" || code == "load_failed" {
		event = s.logger.Error()
	}
	event.Err(err).Str("operation", operation).Str("code", code).Msg("queue operation rejected")
}

// ErrorCode names err the way API responses and metrics report it.
func ErrorCode(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validation):
		return "validation_failed"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, store.ErrEntryNotFound):
		return "entry_not_found"
	case errors.Is(err, store.ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, store.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, store.ErrLoadFailed):
		return "load_failed"
	case errors.Is(err, store.ErrInvalidEntry):
		return "invalid_entry"
	default:
		return "internal_error"
	}
}
