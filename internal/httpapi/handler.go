package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/metrics"
	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/queue"
	"qms/patient-queue/internal/store"
)

// Authenticator checks stub login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (identity.Viewer, error)
}

// HealthCheck reports backing store health for /healthz.
type HealthCheck func(ctx context.Context) (interface{}, error)

type Handler struct {
	svc      *queue.Service
	issuer   *identity.Issuer
	accounts Authenticator
	metrics  *metrics.Collector
	health   HealthCheck
	logger   zerolog.Logger
	refresh  time.Duration
}

type Options struct {
	Issuer   *identity.Issuer
	Accounts Authenticator
	Metrics  *metrics.Collector
	Health   HealthCheck
	Logger   zerolog.Logger
	// Refresh is the wait-time re-render interval for realtime sessions.
	Refresh time.Duration
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Viewer    identity.Viewer `json:"viewer"`
}

type eventsResponse struct {
	EntryID    string             `json:"entry_id"`
	Events     []store.EntryEvent `json:"events"`
	ChainValid bool               `json:"chain_valid"`
}

type reloadResponse struct {
	Entries int `json:"entries"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func NewHandler(svc *queue.Service, options Options) *Handler {
	return &Handler{
		svc:      svc,
		issuer:   options.Issuer,
		accounts: options.Accounts,
		metrics:  options.Metrics,
		health:   options.Health,
		logger:   options.Logger,
		refresh:  options.Refresh,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/queue/reload", h.handleReload)
	mux.HandleFunc("/api/queue/", h.handleEntry)
	mux.Handle("/realtime/", h.realtime())
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	details, err := h.health(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "store": details})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "store": details})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	viewer, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, requestID, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("login failed")
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	token, expiresAt, err := h.issuer.Issue(viewer)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("issue token")
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, Viewer: viewer})
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list, err := h.svc.Patients(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Patient{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleEnqueue(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	query := r.URL.Query()
	tab := strings.TrimSpace(query.Get("tab"))
	if tab == "" {
		tab = models.FilterAll
	}
	if !isValidTab(tab) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "tab must be one of all, waiting, processing, completed, cancelled")
		return
	}
	priority := strings.TrimSpace(query.Get("priority"))
	if priority != "" && priority != models.FilterAll && !models.Priority(priority).Valid() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "priority must be one of all, normal, urgent, emergency")
		return
	}
	filter := models.QueueFilter{
		Status:     tab,
		Priority:   priority,
		SearchTerm: query.Get("search"),
	}

	listing, err := h.svc.List(r.Context(), viewer, tab, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	var draft queue.Draft
	if !decodeRequest(w, r, &draft) {
		return
	}
	result, err := h.svc.Enqueue(r.Context(), viewer, draft)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := h.svc.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	viewer, _ := viewerFromContext(r.Context())
	entries, err := h.svc.Reload(r.Context(), viewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Entries: len(entries)})
}

func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entryID := parts[0]

	switch {
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch parts[2] {
		case "assign-self":
			h.handleAction(w, r, entryID, h.svc.AssignSelf)
		case "complete":
			h.handleAction(w, r, entryID, h.svc.MarkComplete)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEvents(w, r, entryID)
	case len(parts) == 2 && parts[1] == "patient":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handlePatientLink(w, r, entryID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type entryAction func(ctx context.Context, viewer identity.Viewer, entryID string) (queue.Result, error)

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, entryID string, action entryAction) {
	viewer, ok := viewerFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	result, err := action(r.Context(), viewer, entryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request, entryID string) {
	events, err := h.svc.Events(r.Context(), entryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []store.EntryEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		EntryID:    entryID,
		Events:     events,
		ChainValid: store.VerifyEntryEvents(events) == nil,
	})
}

func (h *Handler) handlePatientLink(w http.ResponseWriter, r *http.Request, entryID string) {
	viewer, ok := viewerFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	location, err := h.svc.PatientLink(r.Context(), viewer, entryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func isValidTab(tab string) bool {
	if tab == models.FilterAll {
		return true
	}
	return models.Status(tab).Valid()
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var validation *queue.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_failed", "please fix the highlighted fields"
	case errors.Is(err, queue.ErrNotEligible):
		return http.StatusForbidden, "not_eligible", "you are not allowed to perform this action"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrAlreadyAssigned):
		return http.StatusConflict, "already_assigned", "patient is already assigned to a doctor"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "queue entry state does not allow this action"
	case errors.Is(err, store.ErrLoadFailed):
		return http.StatusServiceUnavailable, "load_failed", "failed to load patient queue"
	case errors.Is(err, store.ErrInvalidEntry):
		return http.StatusBadRequest, "invalid_entry", "invalid queue entry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	resp := errorResponse{
		RequestID: requestIDFromRequest(r),
		Error:     responseError{Code: code, Message: msg},
	}
	var validation *queue.ValidationError
	if errors.As(err, &validation) {
		resp.Error.Fields = validation.Fields
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
