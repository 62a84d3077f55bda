package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"qms/patient-queue/internal/hub"
	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/models"
)

const DefaultRefresh = time.Minute

// Frame is one rendering of a viewing session.
type Frame struct {
	Listing
	Stale bool      `json:"stale"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

type ViewOptions struct {
	// Refresh is how often wait-time text is re-rendered.
	Refresh time.Duration
}

// View is one viewer's live window onto the queue. It recomputes on store
// changes and tab or filter changes, and re-renders wait times on a ticker.
// Run drives it; the setters are safe to call from other goroutines.
//
// The hub only forwards changes touching the current tab, so every tab or
// filter change and every tick re-reads the store before rendering.
type View struct {
	svc     *Service
	viewer  identity.Viewer
	client  *hub.Client
	refresh time.Duration
	frames  chan Frame
	changed chan struct{}

	mu      sync.Mutex
	tab     string
	filter  models.QueueFilter
	entries []models.QueueEntry
	err     error
}

func (s *Service) NewView(viewer identity.Viewer, options ViewOptions) *View {
	refresh := options.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &View{
		svc:     s,
		viewer:  viewer,
		client:  &hub.Client{ID: uuid.NewString(), Send: make(chan hub.Change, 16)},
		refresh: refresh,
		frames:  make(chan Frame, 1),
		changed: make(chan struct{}, 1),
		tab:     models.FilterAll,
	}
}

// Frames delivers the latest frame. A slow reader sees only the newest one.
// The channel is closed when Run returns.
func (v *View) Frames() <-chan Frame {
	return v.frames
}

func (v *View) SetTab(tab string) {
	if tab == "" {
		tab = models.FilterAll
	}
	v.mu.Lock()
	v.tab = tab
	v.mu.Unlock()
	v.svc.hub.UpdateSubscription(v.client, hub.Subscription{Status: tab})
	v.poke()
}

func (v *View) SetFilter(filter models.QueueFilter) {
	v.mu.Lock()
	v.filter = filter
	v.mu.Unlock()
	v.poke()
}

// ResetFilter clears priority and search and returns to the "all" tab.
func (v *View) ResetFilter() {
	v.SetFilter(models.QueueFilter{})
	v.SetTab(models.FilterAll)
}

// Err is the last load failure, cleared by the next successful reload.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Frame renders the current state without touching the store.
func (v *View) Frame() Frame {
	now := v.svc.now()
	v.mu.Lock()
	defer v.mu.Unlock()
	filter := v.filter
	filter.Status = v.tab
	frame := Frame{
		Listing: BuildListing(v.entries, v.viewer, v.tab, filter, now),
		Stale:   v.err != nil,
		At:      now.UTC(),
	}
	if v.err != nil {
		frame.Error = v.err.Error()
	}
	return frame
}

// Run serves the view until ctx ends, then unregisters from the hub and
// closes Frames.
func (v *View) Run(ctx context.Context) error {
	h := v.svc.hub
	h.Register(v.client)
	defer h.Unregister(v.client)
	defer close(v.frames)

	v.reloadSnapshot(ctx)
	v.emit()

	ticker := time.NewTicker(v.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-v.client.Send:
			if !ok {
				return nil
			}
			v.apply(ctx, change)
			v.emit()
		case <-v.changed:
			v.reloadSnapshot(ctx)
			v.emit()
		case <-ticker.C:
			// Reconciles changes dropped for a full Send buffer.
			v.reloadSnapshot(ctx)
			v.emit()
		}
	}
}

func (v *View) apply(ctx context.Context, change hub.Change) {
	if change.Type == hub.ChangeLoadFailed {
		v.mu.Lock()
		v.err = errors.New(change.Error)
		v.mu.Unlock()
		return
	}
	if change.Type == hub.ChangeQueueReloaded {
		v.mu.Lock()
		v.err = nil
		v.mu.Unlock()
	}
	v.reloadSnapshot(ctx)
}

// reloadSnapshot keeps the last good entries if the store cannot be read.
func (v *View) reloadSnapshot(ctx context.Context) {
	entries, err := v.svc.Snapshot(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.err = err
		return
	}
	v.entries = entries
}

func (v *View) emit() {
	frame := v.Frame()
	select {
	case v.frames <- frame:
	default:
		select {
		case <-v.frames:
		default:
		}
		v.frames <- frame
	}
}

func (v *View) poke() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}
