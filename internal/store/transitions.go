package store

import "qms/patient-queue/internal/models"

const (
	ActionAssignSelf = "assign_self"
	ActionComplete   = "complete"
	ActionCancel     = "cancel"
)

// cancel is reserved for the external cancellation flow; no store operation
// triggers it.
var transitionMap = map[string][]models.Status{
	ActionAssignSelf: {models.StatusWaiting},
	ActionComplete:   {models.StatusProcessing},
	ActionCancel:     {models.StatusWaiting},
}

var transitionTarget = map[string]models.Status{
	ActionAssignSelf: models.StatusProcessing,
	ActionComplete:   models.StatusCompleted,
	ActionCancel:     models.StatusCancelled,
}

func ValidTransition(action string, fromStatus models.Status) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// RequiredStatus returns the only status action may start from.
func RequiredStatus(action string) models.Status {
	allowed := transitionMap[action]
	if len(allowed) == 0 {
		return ""
	}
	return allowed[0]
}

func TargetStatus(action string) models.Status {
	return transitionTarget[action]
}

// StateError picks the precondition failure reported when action is refused
// for an entry currently in status.
func StateError(action string, status models.Status) error {
	if action == ActionAssignSelf && (status == models.StatusProcessing || status == models.StatusCompleted) {
		return ErrAlreadyAssigned
	}
	return ErrInvalidState
}

var statusStage = map[models.Status]int{
	models.StatusWaiting:    0,
	models.StatusProcessing: 1,
	models.StatusCompleted:  2,
	models.StatusCancelled:  2,
}

// Regresses reports whether overwriting an entry in status current with a
// copy in status incoming would move it backwards. A terminal status never
// changes once reached.
func Regresses(current, incoming models.Status) bool {
	if current.Terminal() {
		return incoming != current
	}
	return statusStage[incoming] < statusStage[current]
}
