package domain

import "errors"

// Sentinel errors shared across the engine. Callers match them with
// errors.Is so wrapped messages stay free-form.
var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation error")

	// ErrSubmissionNotFound is returned when a portal submission id does not
	// resolve to a record.
	ErrSubmissionNotFound = errors.New("portal submission not found")

	// ErrFormSubmissionNotFound is returned when the originating form
	// submission cannot be loaded.
	ErrFormSubmissionNotFound = errors.New("form submission not found")

	// ErrUnsupportedPortal is returned when no adapter is registered for a
	// submission's portal type.
	ErrUnsupportedPortal = errors.New("unsupported portal type")

	// ErrNoAppointmentSlots indicates the portal exposed no bookable
	// appointment slot. This is a terminal condition: waiting minutes and
	// retrying does not conjure a slot.
	ErrNoAppointmentSlots = errors.New("no appointment slots available")

	// ErrSubmissionLocked indicates another attempt currently owns the
	// submission.
	ErrSubmissionLocked = errors.New("submission is locked by another attempt")

	// ErrMaxRetriesReached indicates the retry budget is exhausted.
	ErrMaxRetriesReached = errors.New("maximum retry attempts reached")
)
