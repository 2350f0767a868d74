package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

// Submitter runs one automation attempt for a submission.
type Submitter interface {
	SubmitFormToPortal(ctx context.Context, portalSubmissionID, userID string) (domain.Result, error)
}

// SubmissionStore loads submissions for the read endpoints and applies the
// retry endpoint's status transition.
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (*domain.PortalSubmission, error)
	GetByFormSubmissionID(ctx context.Context, formSubmissionID string) (*domain.PortalSubmission, error)
	Update(ctx context.Context, id string, upd store.SubmissionUpdate) (*domain.PortalSubmission, error)
}

// SubmissionCreator inserts new PENDING submissions.
type SubmissionCreator interface {
	Create(ctx context.Context, formSubmissionID string, portalType domain.PortalType) (*domain.PortalSubmission, error)
}

// Handler exposes the submission engine over HTTP. Submission attempts run in
// the background; the endpoints respond with the persisted state and clients
// poll the status endpoint for the outcome.
type Handler struct {
	submitter   Submitter
	submissions SubmissionStore
	creator     SubmissionCreator
	maxAttempts int
	logger      *zap.Logger
}

func New(submitter Submitter, submissions SubmissionStore, creator SubmissionCreator, maxAttempts int, logger *zap.Logger) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = domain.MaxRetryAttempts
	}
	return &Handler{
		submitter:   submitter,
		submissions: submissions,
		creator:     creator,
		maxAttempts: maxAttempts,
		logger:      logger.Named("http_handler"),
	}
}

// Register mounts the submission endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/submissions", h.CreateSubmission)
	r.Get("/submissions/{id}", h.GetSubmission)
	r.Get("/submissions/{id}/status", h.GetSubmissionStatus)
	r.Post("/submissions/{id}/retry", h.RetrySubmission)
	r.Get("/forms/{formSubmissionId}/submission", h.GetSubmissionForForm)
}

type createSubmissionRequest struct {
	FormSubmissionID string `json:"formSubmissionId"`
	PortalType       string `json:"portalType"`
	UserID           string `json:"userId"`
}

// CreateSubmission creates a PENDING submission for a form and kicks off the
// first automation attempt in the background.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FormSubmissionID == "" {
		writeError(w, http.StatusBadRequest, "formSubmissionId is required")
		return
	}
	portalType, err := domain.ParsePortalTypeFromString(req.PortalType)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid portal type %q", req.PortalType))
		return
	}

	sub, err := h.creator.Create(r.Context(), req.FormSubmissionID, portalType)
	if err != nil {
		h.logger.Error("Failed to create portal submission.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create portal submission")
		return
	}

	h.runAttempt(sub.ID, req.UserID)
	writeJSON(w, http.StatusAccepted, fromSubmission(sub))
}

// RetrySubmission triggers a manual retry. The guard mirrors the automatic
// path: only FAILED or RETRYING submissions qualify, and the retry budget
// still applies.
func (h *Handler) RetrySubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, id, err)
		return
	}
	if !sub.CanRetry() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("cannot retry submission with status %s", sub.Status))
		return
	}
	if sub.RetryCount >= h.maxAttempts {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("maximum retry attempts reached (%d)", h.maxAttempts))
		return
	}

	// Flip to RETRYING before the attempt launches so a status poll between
	// the accept and the orchestrator's IN_PROGRESS update reflects it.
	status := domain.StatusRetrying
	updated, err := h.submissions.Update(r.Context(), sub.ID, store.SubmissionUpdate{Status: &status})
	if err != nil {
		h.logger.Error("Failed to mark submission RETRYING.", zap.String("id", sub.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update submission")
		return
	}

	h.runAttempt(updated.ID, r.URL.Query().Get("userId"))
	writeJSON(w, http.StatusAccepted, fromSubmission(updated))
}

// GetSubmission returns the full submission record.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, fromSubmission(sub))
}

type statusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retryCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// GetSubmissionStatus returns the lifecycle state only, for status polling.
func (h *Handler) GetSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:           sub.ID,
		Status:       sub.Status.String(),
		RetryCount:   sub.RetryCount,
		ErrorMessage: sub.ErrorMessage,
	})
}

// GetSubmissionForForm resolves the latest submission attached to a form.
func (h *Handler) GetSubmissionForForm(w http.ResponseWriter, r *http.Request) {
	formSubmissionID := chi.URLParam(r, "formSubmissionId")
	sub, err := h.submissions.GetByFormSubmissionID(r.Context(), formSubmissionID)
	if err != nil {
		h.writeLoadError(w, formSubmissionID, err)
		return
	}
	writeJSON(w, http.StatusOK, fromSubmission(sub))
}

// runAttempt launches the automation attempt detached from the request:
// portal runs take minutes and must outlive the HTTP exchange.
func (h *Handler) runAttempt(submissionID, userID string) {
	go func() {
		if _, err := h.submitter.SubmitFormToPortal(context.Background(), submissionID, userID); err != nil {
			h.logger.Error("Background submission attempt errored.",
				zap.String("submission_id", submissionID), zap.Error(err))
		}
	}()
}

func (h *Handler) writeLoadError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("submission %s not found", id))
		return
	}
	h.logger.Error("Failed to load submission.", zap.String("id", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load submission")
}
