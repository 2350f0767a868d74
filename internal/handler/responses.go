package handler

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// submissionResponse is the wire shape of a portal submission.
type submissionResponse struct {
	ID                     string     `json:"id"`
	FormSubmissionID       string     `json:"formSubmissionId"`
	PortalType             string     `json:"portalType"`
	Status                 string     `json:"status"`
	RetryCount             int        `json:"retryCount"`
	ConfirmationNumber     string     `json:"confirmationNumber,omitempty"`
	ConfirmationReceiptURL string     `json:"confirmationReceiptUrl,omitempty"`
	ErrorMessage           string     `json:"errorMessage,omitempty"`
	LastAttemptAt          *time.Time `json:"lastAttemptAt,omitempty"`
	NextRetryAt            *time.Time `json:"nextRetryAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

func fromSubmission(ps *domain.PortalSubmission) submissionResponse {
	return submissionResponse{
		ID:                     ps.ID,
		FormSubmissionID:       ps.FormSubmissionID,
		PortalType:             ps.PortalType.String(),
		Status:                 ps.Status.String(),
		RetryCount:             ps.RetryCount,
		ConfirmationNumber:     ps.ConfirmationNumber,
		ConfirmationReceiptURL: ps.ConfirmationReceiptURL,
		ErrorMessage:           ps.ErrorMessage,
		LastAttemptAt:          ps.LastAttemptAt,
		NextRetryAt:            ps.NextRetryAt,
		CreatedAt:              ps.CreatedAt,
		UpdatedAt:              ps.UpdatedAt,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
