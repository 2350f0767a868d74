package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a portal submission.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusSubmitted      Status = "SUBMITTED"
	StatusFailed         Status = "FAILED"
	StatusRetrying       Status = "RETRYING"
	StatusRetryScheduled Status = "RETRY_SCHEDULED"
	StatusCompleted      Status = "COMPLETED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSubmitted, StatusFailed,
		StatusRetrying, StatusRetryScheduled, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further attempts may mutate the submission.
// FAILED is only terminal once the retry budget is exhausted, which is why it
// is not listed here; the retry engine decides that separately.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// PortalType identifies the external government portal a submission targets.
type PortalType string

const (
	PortalImmigration        PortalType = "IMMIGRATION"
	PortalVisa               PortalType = "VISA"
	PortalRegistrationBureau PortalType = "REGISTRATION_BUREAU"
	PortalEmploymentPermit   PortalType = "EMPLOYMENT_PERMIT"
)

func (p PortalType) String() string { return string(p) }

func (p PortalType) IsValid() bool {
	switch p {
	case PortalImmigration, PortalVisa, PortalRegistrationBureau, PortalEmploymentPermit:
		return true
	}
	return false
}

func ParsePortalTypeFromString(s string) (PortalType, error) {
	pt := PortalType(strings.ToUpper(strings.TrimSpace(s)))
	if !pt.IsValid() {
		return "", fmt.Errorf("%w: invalid portal type %q", ErrValidation, s)
	}
	return pt, nil
}

// MaxRetryAttempts caps the number of automation attempts per submission.
// Once RetryCount reaches this value the submission is permanently FAILED.
const MaxRetryAttempts = 3

// PortalSubmission is one government-portal attempt tied to a form
// submission. It is the audit trail of an external interaction and is never
// deleted.
type PortalSubmission struct {
	ID                     string
	FormSubmissionID       string
	PortalType             PortalType
	Status                 Status
	RetryCount             int
	ConfirmationNumber     string
	ConfirmationReceiptURL string
	ErrorMessage           string
	LastAttemptAt          *time.Time
	NextRetryAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CanRetry reports whether a manual retry request is acceptable in the
// submission's current state.
func (ps *PortalSubmission) CanRetry() bool {
	return ps.Status == StatusFailed || ps.Status == StatusRetrying
}

// FormSubmission is the originating dynamic-form payload, owned by the case
// management application and consumed read-only here.
type FormSubmission struct {
	ID         string
	TemplateID string
	CaseID     string
	FormData   map[string]string
	Status     string
}

// LocatorKind selects how a mapped portal field is located on the page.
type LocatorKind string

const (
	LocateByID    LocatorKind = "id"
	LocateByName  LocatorKind = "name"
	LocateByCSS   LocatorKind = "css"
	LocateByXPath LocatorKind = "xpath"
)

// FieldMapping declares how one logical form field corresponds to one portal
// input field. Mappings are scoped to a portal type and applied in order.
type FieldMapping struct {
	ID          string
	PortalType  PortalType
	FormField   string
	PortalField string
	LocateBy    LocatorKind
	Required    bool
}

// Result is the outcome of one adapter run against a portal.
type Result struct {
	Success                bool
	Status                 Status
	ConfirmationNumber     string
	ConfirmationReceiptURL string
	ErrorMessage           string
}

// Failure builds a failed result with a contextualized message.
func Failure(format string, args ...any) Result {
	return Result{
		Success:      false,
		Status:       StatusFailed,
		ErrorMessage: fmt.Sprintf(format, args...),
	}
}
