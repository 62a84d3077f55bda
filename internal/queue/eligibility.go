package queue

import (
	"errors"
	"strings"

	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/models"
)

type Action string

const (
	ActionEnqueue      Action = "enqueue"
	ActionAssignSelf   Action = "assign_self"
	ActionMarkComplete Action = "mark_complete"
	ActionViewPatient  Action = "view_patient"
	ActionReload       Action = "reload"
)

var ErrNotEligible = errors.New("viewer not eligible for action")

var enqueueRoles = map[identity.Role]bool{
	identity.RoleReceptionist: true,
	identity.RoleClinician:    true,
	identity.RoleAdmin:        true,
}

// CanEnqueue reports whether the viewer may add patients to the queue.
func CanEnqueue(viewer identity.Viewer) bool {
	return enqueueRoles[viewer.Role]
}

// CanReload reports whether the viewer may rehydrate the queue from its
// source. Front-desk staff only; the queue view of other roles is read-only.
func CanReload(viewer identity.Viewer) bool {
	return enqueueRoles[viewer.Role]
}

// Can reports whether viewer may perform action on entry. It is advisory:
// the store still enforces status preconditions on its own.
func Can(viewer identity.Viewer, entry models.QueueEntry, action Action) bool {
	switch action {
	case ActionEnqueue:
		return CanEnqueue(viewer)
	case ActionAssignSelf:
		return viewer.Role == identity.RoleClinician && entry.Status == models.StatusWaiting
	case ActionMarkComplete:
		return viewer.Role == identity.RoleClinician &&
			entry.Status == models.StatusProcessing &&
			IsAssignedTo(entry, viewer)
	case ActionViewPatient:
		return viewer.Role.Valid()
	case ActionReload:
		return CanReload(viewer)
	default:
		return false
	}
}

// AvailableActions lists the per-entry actions the viewer may take, in
// display order.
func AvailableActions(viewer identity.Viewer, entry models.QueueEntry) []Action {
	actions := []Action{}
	for _, action := range []Action{ActionViewPatient, ActionAssignSelf, ActionMarkComplete} {
		if Can(viewer, entry, action) {
			actions = append(actions, action)
		}
	}
	return actions
}

// IsAssignedTo matches the entry's assignee against the viewer's display name
// or contact local part, case-sensitively and by substring.
func IsAssignedTo(entry models.QueueEntry, viewer identity.Viewer) bool {
	assignee := entry.Assignee()
	if assignee == "" {
		return false
	}
	if name := viewer.DisplayName; name != "" && strings.Contains(assignee, name) {
		return true
	}
	if local := viewer.LocalPart(); local != "" && strings.Contains(assignee, local) {
		return true
	}
	return false
}
