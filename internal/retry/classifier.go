package retry

import "strings"

// Category buckets a failure message for reporting and metrics.
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryTimeout     Category = "timeout"
	CategoryServer      Category = "server"
	CategorySession     Category = "session"
	CategoryValidation  Category = "validation"
	CategoryAuth        Category = "auth"
	CategoryData        Category = "data"
	CategoryAppointment Category = "appointment"
	CategoryUnknown     Category = "unknown"
)

// Description renders the category for user-facing notifications.
func (c Category) Description() string {
	switch c {
	case CategoryNetwork:
		return "a network error while reaching the portal"
	case CategoryTimeout:
		return "a timeout while the portal was responding"
	case CategoryServer:
		return "a portal server error"
	case CategorySession:
		return "an expired portal session"
	case CategoryValidation:
		return "the portal rejecting the submitted data"
	case CategoryAuth:
		return "a portal authentication failure"
	case CategoryData:
		return "malformed submission data"
	case CategoryAppointment:
		return "no available appointment slot"
	}
	return "an unrecognized error"
}

// Classification is the outcome of classifying one failure message.
type Classification struct {
	Category  Category
	Retryable bool
	// Pattern is the table entry that matched, empty for the default branch.
	Pattern string
}

type rule struct {
	pattern   string
	category  Category
	retryable bool
}

// classificationRules is matched top to bottom against the lowercased
// message; the first hit wins. Terminal patterns come first so that a message
// mentioning both (e.g. "validation failed: request timed out upstream")
// resolves conservatively.
var classificationRules = []rule{
	// Terminal: retrying will not change the outcome.
	{"no appointment slots", CategoryAppointment, false},
	{"validation", CategoryValidation, false},
	{"invalid field", CategoryValidation, false},
	{"required field", CategoryValidation, false},
	{"authentication", CategoryAuth, false},
	{"authorization", CategoryAuth, false},
	{"unauthorized", CategoryAuth, false},
	{"forbidden", CategoryAuth, false},
	{"login failed", CategoryAuth, false},
	{"malformed", CategoryData, false},
	{"unsupported format", CategoryData, false},

	// Retryable: transient infrastructure conditions.
	{"browser session", CategoryServer, true},
	{"network error", CategoryNetwork, true},
	{"connection refused", CategoryNetwork, true},
	{"connection reset", CategoryNetwork, true},
	{"econnreset", CategoryNetwork, true},
	{"timeout", CategoryTimeout, true},
	{"timed out", CategoryTimeout, true},
	{"deadline exceeded", CategoryTimeout, true},
	{"502", CategoryServer, true},
	{"503", CategoryServer, true},
	{"504", CategoryServer, true},
	{"bad gateway", CategoryServer, true},
	{"service unavailable", CategoryServer, true},
	{"gateway timeout", CategoryServer, true},
	{"server error", CategoryServer, true},
	{"internal error", CategoryServer, true},
	{"session expired", CategorySession, true},
	{"session has expired", CategorySession, true},
	{"try again later", CategoryServer, true},
	{"temporarily unavailable", CategoryServer, true},
}

// Classify maps a failure message to a retryable or terminal category.
// Unrecognized messages are terminal: giving up on the occasional transient
// unknown beats retrying a permanent one forever.
func Classify(message string) Classification {
	lower := strings.ToLower(message)
	for _, r := range classificationRules {
		if strings.Contains(lower, r.pattern) {
			return Classification{Category: r.category, Retryable: r.retryable, Pattern: r.pattern}
		}
	}
	return Classification{Category: CategoryUnknown, Retryable: false}
}
