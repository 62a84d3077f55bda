package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/igm/sockjs-go/sockjs"

	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/models"
	"qms/patient-queue/internal/queue"
)

const closeUnauthorized = 4001

// clientMessage is sent by a realtime client to steer its view.
type clientMessage struct {
	Action   string `json:"action"`
	Tab      string `json:"tab"`
	Priority string `json:"priority"`
	Search   string `json:"search"`
}

type serverMessage struct {
	Type   string           `json:"type"`
	Frame  *queue.Frame     `json:"frame,omitempty"`
	Viewer *identity.Viewer `json:"viewer,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func (h *Handler) realtime() http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, h.serveSession)
}

// serveSession runs one viewing session per SockJS connection until the
// client goes away.
func (h *Handler) serveSession(session sockjs.Session) {
	viewer, err := h.issuer.Parse(tokenFromRequest(session.Request()))
	if err != nil {
		_ = session.Close(closeUnauthorized, "unauthorized")
		return
	}
	logger := h.logger.With().Str("session_id", session.ID()).Str("viewer", viewer.ContactAddress).Logger()
	logger.Info().Msg("realtime session opened")
	defer logger.Info().Msg("realtime session closed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := h.svc.NewView(viewer, queue.ViewOptions{Refresh: h.refresh})
	go func() {
		_ = view.Run(ctx)
	}()
	go func() {
		for frame := range view.Frames() {
			if err := sendMessage(session, serverMessage{Type: "frame", Frame: &frame}); err != nil {
				cancel()
				return
			}
		}
	}()
	_ = sendMessage(session, serverMessage{Type: "welcome", Viewer: &viewer})

	for {
		raw, err := session.Recv()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			_ = sendMessage(session, serverMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if errText := h.applyClientMessage(ctx, viewer, view, msg); errText != "" {
			_ = sendMessage(session, serverMessage{Type: "error", Error: errText})
		}
	}
}

func (h *Handler) applyClientMessage(ctx context.Context, viewer identity.Viewer, view *queue.View, msg clientMessage) string {
	switch strings.TrimSpace(msg.Action) {
	case "filter":
		tab := strings.TrimSpace(msg.Tab)
		if tab == "" {
			tab = models.FilterAll
		}
		if !isValidTab(tab) {
			return "unknown tab"
		}
		view.SetTab(tab)
		view.SetFilter(models.QueueFilter{Priority: strings.TrimSpace(msg.Priority), SearchTerm: msg.Search})
	case "reset":
		view.ResetFilter()
	case "reload":
		// Load failures reach the view through the hub and mark its frames
		// stale; only a refused viewer is answered here.
		if _, err := h.svc.Reload(ctx, viewer); errors.Is(err, queue.ErrNotEligible) {
			return "not eligible"
		}
	default:
		return "unknown action"
	}
	return ""
}

func sendMessage(session sockjs.Session, msg serverMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return session.Send(string(payload))
}
