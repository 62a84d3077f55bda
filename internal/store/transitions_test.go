package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qms/patient-queue/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   models.Status
		valid  bool
	}{
		{ActionAssignSelf, models.StatusWaiting, true},
		{ActionAssignSelf, models.StatusProcessing, false},
		{ActionAssignSelf, models.StatusCompleted, false},
		{ActionAssignSelf, models.StatusCancelled, false},
		{ActionComplete, models.StatusProcessing, true},
		{ActionComplete, models.StatusWaiting, false},
		{ActionComplete, models.StatusCompleted, false},
		{ActionComplete, models.StatusCancelled, false},
		{ActionCancel, models.StatusWaiting, true},
		{ActionCancel, models.StatusProcessing, false},
		{"unknown", models.StatusWaiting, false},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.valid, ValidTransition(tt.action, tt.from), "ValidTransition(%q, %q)", tt.action, tt.from)
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, action := range []string{ActionAssignSelf, ActionComplete, ActionCancel} {
		assert.False(t, ValidTransition(action, models.StatusCompleted))
		assert.False(t, ValidTransition(action, models.StatusCancelled))
	}
}

func TestStateError(t *testing.T) {
	assert.ErrorIs(t, StateError(ActionAssignSelf, models.StatusProcessing), ErrAlreadyAssigned)
	assert.ErrorIs(t, StateError(ActionAssignSelf, models.StatusCompleted), ErrAlreadyAssigned)
	assert.ErrorIs(t, StateError(ActionAssignSelf, models.StatusCancelled), ErrInvalidState)
	assert.ErrorIs(t, StateError(ActionComplete, models.StatusWaiting), ErrInvalidState)
	assert.True(t, IsPreconditionFailed(ErrAlreadyAssigned))
	assert.False(t, IsPreconditionFailed(ErrLoadFailed))
}

func TestRegresses(t *testing.T) {
	cases := []struct {
		current, incoming models.Status
		want              bool
	}{
		{models.StatusWaiting, models.StatusWaiting, false},
		{models.StatusWaiting, models.StatusProcessing, false},
		{models.StatusWaiting, models.StatusCancelled, false},
		{models.StatusProcessing, models.StatusWaiting, true},
		{models.StatusProcessing, models.StatusCompleted, false},
		{models.StatusCompleted, models.StatusProcessing, true},
		{models.StatusCompleted, models.StatusCancelled, true},
		{models.StatusCompleted, models.StatusCompleted, false},
		{models.StatusCancelled, models.StatusWaiting, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Regresses(tc.current, tc.incoming), "%s -> %s", tc.current, tc.incoming)
	}
}
