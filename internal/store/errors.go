package store

import "errors"

var (
	ErrEntryNotFound   = errors.New("queue entry not found")
	ErrInvalidState    = errors.New("invalid queue entry state")
	ErrAlreadyAssigned = errors.New("queue entry already assigned")
	ErrAssigneeChanged = errors.New("queue entry assignee changed")
	ErrInvalidEntry    = errors.New("invalid queue entry")
	ErrDuplicateEntry  = errors.New("duplicate queue entry")
	ErrLoadFailed      = errors.New("queue load failed")
)

// IsPreconditionFailed reports whether err rejects a mutation because of the
// target entry's current state or existence.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadyAssigned) ||
		errors.Is(err, ErrAssigneeChanged)
}
