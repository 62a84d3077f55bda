package queue

import (
	"time"

	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/models"
)

// Badge is a display label plus a tone the client maps to colours.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

type EntryView struct {
	Entry            models.QueueEntry `json:"entry"`
	PriorityBadge    Badge             `json:"priority_badge"`
	StatusBadge      Badge             `json:"status_badge"`
	WaitTime         string            `json:"wait_time"`
	AssignedToViewer bool              `json:"assigned_to_viewer"`
	Actions          []Action          `json:"actions"`
}

func PriorityBadge(p models.Priority) Badge {
	switch p {
	case models.PriorityEmergency:
		return Badge{Label: "Emergency", Tone: "critical"}
	case models.PriorityUrgent:
		return Badge{Label: "Urgent", Tone: "warning"}
	default:
		return Badge{Label: "Normal", Tone: "neutral"}
	}
}

func StatusBadge(s models.Status) Badge {
	switch s {
	case models.StatusWaiting:
		return Badge{Label: "Waiting", Tone: "info"}
	case models.StatusProcessing:
		return Badge{Label: "In Progress", Tone: "accent"}
	case models.StatusCompleted:
		return Badge{Label: "Completed", Tone: "success"}
	case models.StatusCancelled:
		return Badge{Label: "Cancelled", Tone: "muted"}
	default:
		return Badge{}
	}
}

func Present(entry models.QueueEntry, viewer identity.Viewer, now time.Time) EntryView {
	return EntryView{
		Entry:            entry,
		PriorityBadge:    PriorityBadge(entry.Priority),
		StatusBadge:      StatusBadge(entry.Status),
		WaitTime:         WaitTime(entry.ArrivalTime, now),
		AssignedToViewer: IsAssignedTo(entry, viewer),
		Actions:          AvailableActions(viewer, entry),
	}
}

func PresentAll(entries []models.QueueEntry, viewer identity.Viewer, now time.Time) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, Present(entry, viewer, now))
	}
	return views
}
