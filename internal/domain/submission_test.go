package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusFromString(t *testing.T) {
	t.Run("should accept known statuses case-insensitively", func(t *testing.T) {
		st, err := ParseStatusFromString(" retry_scheduled ")
		require.NoError(t, err)
		assert.Equal(t, StatusRetryScheduled, st)
	})

	t.Run("should reject unknown statuses", func(t *testing.T) {
		_, err := ParseStatusFromString("EXPLODED")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestParsePortalTypeFromString(t *testing.T) {
	pt, err := ParsePortalTypeFromString("registration_bureau")
	require.NoError(t, err)
	assert.Equal(t, PortalRegistrationBureau, pt)

	_, err = ParsePortalTypeFromString("TAX_OFFICE")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStatusLifecyclePredicates(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	for _, st := range []Status{
		StatusPending, StatusInProgress, StatusSubmitted,
		StatusFailed, StatusRetrying, StatusRetryScheduled,
	} {
		assert.False(t, st.IsTerminal(), "%s must not be terminal", st)
	}
}

func TestCanRetry(t *testing.T) {
	tests := []struct {
		status   Status
		canRetry bool
	}{
		{StatusFailed, true},
		{StatusRetrying, true},
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusSubmitted, false},
		{StatusRetryScheduled, false},
		{StatusCompleted, false},
	}
	for _, tc := range tests {
		sub := &PortalSubmission{Status: tc.status}
		assert.Equal(t, tc.canRetry, sub.CanRetry(), "status %s", tc.status)
	}
}

func TestFailure(t *testing.T) {
	result := Failure("failed to fill field %q: %v", "surname", "element missing")
	assert.False(t, result.Success)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, `failed to fill field "surname": element missing`, result.ErrorMessage)
}
