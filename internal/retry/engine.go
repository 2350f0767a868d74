package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
	"github.com/Dipuraj1New/careerireland-portals/internal/notify"
	"github.com/Dipuraj1New/careerireland-portals/internal/observability"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

// SubmissionStore is the slice of the persistence layer the engine needs.
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (*domain.PortalSubmission, error)
	Update(ctx context.Context, id string, upd store.SubmissionUpdate) (*domain.PortalSubmission, error)
	ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.PortalSubmission, error)
}

// AuditLogger appends audit events. Failures are logged, never propagated.
type AuditLogger interface {
	LogEvent(ctx context.Context, event store.AuditEvent) error
}

// Submitter re-invokes the orchestrator when an armed retry fires. Bound
// after construction because the orchestrator also depends on this engine.
type Submitter interface {
	SubmitFormToPortal(ctx context.Context, portalSubmissionID, userID string) (domain.Result, error)
}

// Engine classifies failures, decides retryable versus terminal, schedules
// delayed re-attempts with exponential backoff, enforces the attempt cap,
// and notifies the user on terminal failure.
type Engine struct {
	submissions SubmissionStore
	notifier    notify.Notifier
	audit       AuditLogger
	scheduler   *Scheduler
	metrics     *observability.Metrics
	cfg         config.RetryConfig
	clock       Clock
	logger      *zap.Logger

	mu        sync.RWMutex
	submitter Submitter
}

func NewEngine(
	cfg config.RetryConfig,
	submissions SubmissionStore,
	notifier notify.Notifier,
	audit AuditLogger,
	scheduler *Scheduler,
	metrics *observability.Metrics,
	clock Clock,
	logger *zap.Logger,
) (*Engine, error) {
	if submissions == nil || notifier == nil || audit == nil || scheduler == nil {
		return nil, fmt.Errorf("cannot initialize retry engine with nil dependencies")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		submissions: submissions,
		notifier:    notifier,
		audit:       audit,
		scheduler:   scheduler,
		metrics:     metrics,
		cfg:         cfg,
		clock:       clock,
		logger:      logger.Named("retry_engine"),
	}, nil
}

// Bind attaches the orchestrator after both sides are constructed.
func (e *Engine) Bind(s Submitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitter = s
}

func (e *Engine) boundSubmitter() Submitter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.submitter
}

// HandleFailedSubmission routes one failed attempt: retryable failures go to
// the backoff scheduler, terminal ones permanently fail the submission and
// alert the user.
func (e *Engine) HandleFailedSubmission(ctx context.Context, id, userID string, result domain.Result) error {
	if result.ErrorMessage == "" {
		return nil
	}

	cls := Classify(result.ErrorMessage)
	log := e.logger.With(
		zap.String("submission_id", id),
		zap.String("category", string(cls.Category)),
		zap.Bool("retryable", cls.Retryable))

	if cls.Retryable {
		log.Info("Failure classified as retryable; scheduling retry.")
		return e.ScheduleRetry(ctx, id, userID, result.ErrorMessage)
	}

	log.Info("Failure classified as terminal; failing submission.")
	return e.failTerminally(ctx, id, userID, result.ErrorMessage, cls)
}

// ScheduleRetry arms a delayed re-attempt, or permanently fails the
// submission when the retry budget is exhausted. It returns as soon as the
// schedule is persisted; the retry itself runs later on the scheduler.
func (e *Engine) ScheduleRetry(ctx context.Context, id, userID, errorMessage string) error {
	sub, err := e.submissions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load submission for retry scheduling: %w", err)
	}

	if sub.RetryCount >= e.cfg.MaxAttempts {
		return e.exhaustRetries(ctx, sub, userID, errorMessage)
	}

	// The budget is charged here, when the re-attempt is armed. The
	// incremented count doubles as the exponent and as the number of the
	// attempt that just failed, so the first scheduled delay is 2x base and
	// the full sequence runs 2x, 4x, 8x before the budget is spent.
	retryCount := sub.RetryCount + 1
	delay := Backoff(e.cfg.BaseDelay, retryCount)
	nextRetryAt := e.clock.Now().Add(delay)

	status := domain.StatusRetryScheduled
	message := fmt.Sprintf("attempt %d failed: %s (retry in %s)", retryCount, errorMessage, delay)
	if _, err := e.submissions.Update(ctx, id, store.SubmissionUpdate{
		Status:       &status,
		RetryCount:   &retryCount,
		ErrorMessage: &message,
		NextRetryAt:  &nextRetryAt,
	}); err != nil {
		return fmt.Errorf("failed to persist retry schedule: %w", err)
	}

	e.logAudit(ctx, store.AuditEvent{
		UserID:       userID,
		Action:       "PORTAL_RETRY_SCHEDULED",
		ResourceType: "portal_submission",
		ResourceID:   id,
		Details: map[string]any{
			"attempt":     retryCount,
			"delayMs":     delay.Milliseconds(),
			"nextRetryAt": nextRetryAt,
			"error":       errorMessage,
		},
	})
	if e.metrics != nil {
		e.metrics.RetryScheduled(sub.PortalType.String())
	}

	e.scheduler.Schedule(Task{SubmissionID: id, UserID: userID, RunAt: nextRetryAt})

	e.logger.Info("Retry scheduled.",
		zap.String("submission_id", id),
		zap.Int("attempt", retryCount),
		zap.Duration("delay", delay))
	return nil
}

// RunScheduledTask is the scheduler handler. It re-checks the submission
// state before acting: a submission that completed (or was failed) through
// another path between arming and firing must not be touched.
func (e *Engine) RunScheduledTask(ctx context.Context, task Task) {
	log := e.logger.With(zap.String("submission_id", task.SubmissionID))

	sub, err := e.submissions.GetByID(ctx, task.SubmissionID)
	if err != nil {
		log.Error("Scheduled retry could not load submission.", zap.Error(err))
		e.logRetryError(ctx, task, err)
		return
	}
	if sub.Status != domain.StatusRetryScheduled && sub.Status != domain.StatusRetrying {
		log.Info("Submission state changed before retry fired; skipping.",
			zap.String("status", sub.Status.String()))
		return
	}

	status := domain.StatusRetrying
	if _, err := e.submissions.Update(ctx, task.SubmissionID, store.SubmissionUpdate{
		Status:           &status,
		ClearNextRetryAt: true,
	}); err != nil {
		log.Error("Failed to mark submission RETRYING.", zap.Error(err))
		e.logRetryError(ctx, task, err)
		return
	}

	submitter := e.boundSubmitter()
	if submitter == nil {
		log.Error("Retry fired with no submitter bound.")
		e.logRetryError(ctx, task, fmt.Errorf("no submitter bound"))
		return
	}

	if _, err := submitter.SubmitFormToPortal(ctx, task.SubmissionID, task.UserID); err != nil {
		// Business failures come back inside the result and were already
		// routed through HandleFailedSubmission by the orchestrator; an
		// error here is infrastructure-level. Log it, never crash the loop.
		log.Error("Scheduled retry attempt errored.", zap.Error(err))
		e.logRetryError(ctx, task, err)
	}
}

// ResumeScheduled re-arms RETRY_SCHEDULED rows after a process restart so
// persisted schedules survive deployments.
func (e *Engine) ResumeScheduled(ctx context.Context, limit int) error {
	// Look far enough ahead to cover the longest possible backoff window.
	horizon := e.clock.Now().Add(Backoff(e.cfg.BaseDelay, e.cfg.MaxAttempts) * 2)
	due, err := e.submissions.ListDueForRetry(ctx, horizon, limit)
	if err != nil {
		return fmt.Errorf("failed to list scheduled retries: %w", err)
	}

	now := e.clock.Now()
	for _, sub := range due {
		runAt := now
		if sub.NextRetryAt != nil && sub.NextRetryAt.After(now) {
			runAt = *sub.NextRetryAt
		}
		e.scheduler.Schedule(Task{SubmissionID: sub.ID, RunAt: runAt})
	}
	if len(due) > 0 {
		e.logger.Info("Resumed persisted retry schedules.", zap.Int("count", len(due)))
	}
	return nil
}

func (e *Engine) exhaustRetries(ctx context.Context, sub *domain.PortalSubmission, userID, errorMessage string) error {
	status := domain.StatusFailed
	message := fmt.Sprintf("maximum retry attempts reached (%d): %s", e.cfg.MaxAttempts, errorMessage)
	if _, err := e.submissions.Update(ctx, sub.ID, store.SubmissionUpdate{
		Status:           &status,
		ErrorMessage:     &message,
		ClearNextRetryAt: true,
	}); err != nil {
		return fmt.Errorf("failed to persist exhausted-retries state: %w", err)
	}

	e.notifyUser(ctx, notify.Notification{
		UserID: userID,
		Title:  "Portal submission failed",
		Message: fmt.Sprintf(
			"Your %s submission could not be completed after %d attempts. Our team has been notified. Last error: %s",
			sub.PortalType, e.cfg.MaxAttempts, errorMessage),
		Type: "error",
		Data: map[string]string{"portalSubmissionId": sub.ID},
	})
	e.logAudit(ctx, store.AuditEvent{
		UserID:       userID,
		Action:       "PORTAL_RETRY_EXHAUSTED",
		ResourceType: "portal_submission",
		ResourceID:   sub.ID,
		Details:      map[string]any{"attempts": sub.RetryCount, "error": errorMessage},
	})
	if e.metrics != nil {
		e.metrics.TerminalFailure(sub.PortalType.String(), "exhausted")
	}

	e.logger.Warn("Retry budget exhausted; submission permanently failed.",
		zap.String("submission_id", sub.ID), zap.Int("attempts", sub.RetryCount))
	return nil
}

func (e *Engine) failTerminally(ctx context.Context, id, userID, errorMessage string, cls Classification) error {
	sub, err := e.submissions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load submission for terminal failure: %w", err)
	}

	status := domain.StatusFailed
	if _, err := e.submissions.Update(ctx, id, store.SubmissionUpdate{
		Status:           &status,
		ErrorMessage:     &errorMessage,
		ClearNextRetryAt: true,
	}); err != nil {
		return fmt.Errorf("failed to persist terminal failure: %w", err)
	}

	e.notifyUser(ctx, notify.Notification{
		UserID: userID,
		Title:  "Portal submission failed",
		Message: fmt.Sprintf(
			"Your %s submission failed due to %s and cannot be retried automatically: %s",
			sub.PortalType, cls.Category.Description(), errorMessage),
		Type: "error",
		Data: map[string]string{"portalSubmissionId": id},
	})
	e.logAudit(ctx, store.AuditEvent{
		UserID:       userID,
		Action:       "PORTAL_TERMINAL_FAILURE",
		ResourceType: "portal_submission",
		ResourceID:   id,
		Details:      map[string]any{"category": string(cls.Category), "error": errorMessage},
	})
	if e.metrics != nil {
		e.metrics.TerminalFailure(sub.PortalType.String(), string(cls.Category))
	}
	return nil
}

func (e *Engine) logRetryError(ctx context.Context, task Task, cause error) {
	e.logAudit(ctx, store.AuditEvent{
		UserID:       task.UserID,
		Action:       "PORTAL_RETRY_ERROR",
		ResourceType: "portal_submission",
		ResourceID:   task.SubmissionID,
		Details:      map[string]any{"error": cause.Error()},
	})
}

func (e *Engine) logAudit(ctx context.Context, event store.AuditEvent) {
	if err := e.audit.LogEvent(ctx, event); err != nil {
		e.logger.Warn("Failed to append audit event.",
			zap.String("action", event.Action), zap.Error(err))
	}
}

func (e *Engine) notifyUser(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Send(ctx, n); err != nil {
		e.logger.Warn("Failed to deliver notification.",
			zap.String("user_id", n.UserID), zap.Error(err))
	}
}
