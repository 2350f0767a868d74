package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
	"github.com/Dipuraj1New/careerireland-portals/internal/lock"
	"github.com/Dipuraj1New/careerireland-portals/internal/notify"
	"github.com/Dipuraj1New/careerireland-portals/internal/observability"
	"github.com/Dipuraj1New/careerireland-portals/internal/portal"
	"github.com/Dipuraj1New/careerireland-portals/internal/retry"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

// lockTTL bounds how long one attempt may own a submission. Generous, because
// an attempt spans login plus form filling plus the confirmation wait.
const lockTTL = 10 * time.Minute

// SubmissionStore is the slice of the persistence layer the orchestrator needs.
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (*domain.PortalSubmission, error)
	Update(ctx context.Context, id string, upd store.SubmissionUpdate) (*domain.PortalSubmission, error)
}

// FormStore reads the originating form submissions.
type FormStore interface {
	GetByID(ctx context.Context, id string) (*domain.FormSubmission, error)
}

// AuditLogger appends audit events. Failures are logged, never propagated.
type AuditLogger interface {
	LogEvent(ctx context.Context, event store.AuditEvent) error
}

// FailureHandler routes a failed attempt into the retry pipeline.
type FailureHandler interface {
	HandleFailedSubmission(ctx context.Context, id, userID string, result domain.Result) error
}

// SessionFactory hands out browser sessions. Satisfied by browser.Manager.
type SessionFactory interface {
	NewDriver(ctx context.Context) (browser.Driver, error)
}

// RateLimiter throttles attempts per portal.
type RateLimiter interface {
	Wait(ctx context.Context, t domain.PortalType) error
}

// Orchestrator runs the end-to-end submission flow: load the submission and
// its form, mark the attempt, dispatch to the portal adapter inside a fresh
// browser session, persist the outcome, and hand failures to the retry
// engine. One submission is processed by at most one attempt at a time.
type Orchestrator struct {
	submissions SubmissionStore
	forms       FormStore
	audit       AuditLogger
	failures    FailureHandler
	browsers    SessionFactory
	registry    *portal.Registry
	notifier    notify.Notifier
	locker      lock.Locker
	limiter     RateLimiter
	metrics     *observability.Metrics
	clock       retry.Clock
	maxAttempts int
	logger      *zap.Logger
}

func New(
	submissions SubmissionStore,
	forms FormStore,
	audit AuditLogger,
	failures FailureHandler,
	browsers SessionFactory,
	registry *portal.Registry,
	notifier notify.Notifier,
	locker lock.Locker,
	limiter RateLimiter,
	metrics *observability.Metrics,
	clock retry.Clock,
	maxAttempts int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if submissions == nil || forms == nil || audit == nil || failures == nil ||
		browsers == nil || registry == nil || notifier == nil || locker == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if clock == nil {
		clock = retry.SystemClock{}
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.MaxRetryAttempts
	}
	return &Orchestrator{
		submissions: submissions,
		forms:       forms,
		audit:       audit,
		failures:    failures,
		browsers:    browsers,
		registry:    registry,
		notifier:    notifier,
		locker:      locker,
		limiter:     limiter,
		metrics:     metrics,
		clock:       clock,
		maxAttempts: maxAttempts,
		logger:      logger.Named("orchestrator"),
	}, nil
}

// SubmitFormToPortal runs one automation attempt for the submission. The
// returned Result always reflects the outcome; a non-nil error means the
// attempt could not start at all (lock contention, storage errors).
func (o *Orchestrator) SubmitFormToPortal(ctx context.Context, portalSubmissionID, userID string) (domain.Result, error) {
	log := o.logger.With(
		zap.String("submission_id", portalSubmissionID),
		zap.String("user_id", userID))

	sub, err := o.submissions.GetByID(ctx, portalSubmissionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionNotFound) {
			log.Warn("Submission not found; nothing to automate.")
			return domain.Failure("portal submission %s not found", portalSubmissionID), nil
		}
		return domain.Result{}, fmt.Errorf("failed to load portal submission: %w", err)
	}

	if sub.Status.IsTerminal() {
		log.Info("Submission already terminal; refusing new attempt.",
			zap.String("status", sub.Status.String()))
		return domain.Failure("cannot submit submission with status %s", sub.Status), nil
	}
	// An armed retry arrives as RETRY_SCHEDULED or RETRYING and already paid
	// for this attempt when it was scheduled, so it may run even at the cap.
	// Anything else at the cap is a fresh attempt beyond the budget.
	armed := sub.Status == domain.StatusRetryScheduled || sub.Status == domain.StatusRetrying
	if sub.RetryCount >= o.maxAttempts && !armed {
		log.Info("Retry budget already spent; refusing new attempt.",
			zap.Int("retry_count", sub.RetryCount))
		return domain.Failure("maximum retry attempts reached (%d)", o.maxAttempts), nil
	}

	acquired, err := o.locker.TryAcquire(ctx, lockKey(sub.ID), lockTTL)
	if err != nil {
		return domain.Result{}, fmt.Errorf("failed to acquire submission lock: %w", err)
	}
	if !acquired {
		return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrSubmissionLocked, sub.ID)
	}
	defer func() {
		if err := o.locker.Release(ctx, lockKey(sub.ID)); err != nil {
			log.Warn("Failed to release submission lock.", zap.Error(err))
		}
	}()

	start := o.clock.Now()
	sub, err = o.markInProgress(ctx, sub)
	if err != nil {
		return domain.Result{}, err
	}

	log.Info("Portal submission attempt starting.",
		zap.String("portal_type", sub.PortalType.String()),
		zap.Int("retry_count", sub.RetryCount))

	result := o.attempt(ctx, sub)
	o.finishAttempt(ctx, sub, userID, result, time.Since(start))
	return result, nil
}

// markInProgress transitions the submission into IN_PROGRESS and stamps the
// attempt time. The retry budget is charged by the retry engine when it arms
// a re-attempt, not here, so the final scheduled retry can still run.
func (o *Orchestrator) markInProgress(ctx context.Context, sub *domain.PortalSubmission) (*domain.PortalSubmission, error) {
	status := domain.StatusInProgress
	now := o.clock.Now()
	cleared := ""
	updated, err := o.submissions.Update(ctx, sub.ID, store.SubmissionUpdate{
		Status:           &status,
		LastAttemptAt:    &now,
		ErrorMessage:     &cleared,
		ClearNextRetryAt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark submission in progress: %w", err)
	}
	return updated, nil
}

// attempt performs the browser work and always comes back with a Result.
func (o *Orchestrator) attempt(ctx context.Context, sub *domain.PortalSubmission) domain.Result {
	form, err := o.forms.GetByID(ctx, sub.FormSubmissionID)
	if err != nil {
		if errors.Is(err, domain.ErrFormSubmissionNotFound) {
			return domain.Failure("form submission %s not found", sub.FormSubmissionID)
		}
		return domain.Failure("failed to load form submission: %v", err)
	}

	adapter, err := o.registry.Get(sub.PortalType)
	if err != nil {
		return domain.Failure("unsupported portal type %q", sub.PortalType)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, sub.PortalType); err != nil {
			return domain.Failure("portal rate limit wait aborted: %v", err)
		}
	}

	drv, err := o.browsers.NewDriver(ctx)
	if err != nil {
		return domain.Failure("failed to create browser session: %v", err)
	}
	defer func() {
		if err := drv.Close(ctx); err != nil {
			o.logger.Warn("Failed to close browser session.",
				zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}()

	return o.runAdapter(ctx, adapter, drv, sub, form)
}

// runAdapter isolates adapter panics: a bug in one portal's automation must
// degrade to a failed result, not take the process down.
func (o *Orchestrator) runAdapter(
	ctx context.Context,
	adapter portal.Adapter,
	drv browser.Driver,
	sub *domain.PortalSubmission,
	form *domain.FormSubmission,
) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Adapter panicked during portal automation.",
				zap.String("submission_id", sub.ID),
				zap.Any("panic", r))
			result = domain.Failure("unexpected error during portal automation")
		}
	}()
	return adapter.Submit(ctx, drv, sub, form)
}

// finishAttempt persists the outcome, emits audit and metrics, and routes
// failures into the retry engine. Routing errors are logged, never returned:
// the attempt outcome is already decided.
func (o *Orchestrator) finishAttempt(ctx context.Context, sub *domain.PortalSubmission, userID string, result domain.Result, elapsed time.Duration) {
	log := o.logger.With(
		zap.String("submission_id", sub.ID),
		zap.String("portal_type", sub.PortalType.String()))

	if result.Success {
		upd := store.SubmissionUpdate{Status: &result.Status}
		if result.ConfirmationNumber != "" {
			upd.ConfirmationNumber = &result.ConfirmationNumber
		}
		if result.ConfirmationReceiptURL != "" {
			upd.ConfirmationReceiptURL = &result.ConfirmationReceiptURL
		}
		if _, err := o.submissions.Update(ctx, sub.ID, upd); err != nil {
			log.Error("Failed to persist successful attempt.", zap.Error(err))
		}

		o.logAudit(ctx, store.AuditEvent{
			UserID:       userID,
			Action:       "PORTAL_SUBMISSION_SUCCESS",
			ResourceType: "portal_submission",
			ResourceID:   sub.ID,
			Details: map[string]any{
				"portalType":         sub.PortalType.String(),
				"status":             result.Status.String(),
				"confirmationNumber": result.ConfirmationNumber,
			},
		})
		if o.metrics != nil {
			o.metrics.ObserveAttempt(sub.PortalType.String(), "success", elapsed.Seconds())
			if result.Status == domain.StatusCompleted {
				o.metrics.SubmissionCompleted(sub.PortalType.String())
			}
		}
		if result.Status == domain.StatusCompleted {
			o.notifyUser(ctx, notify.Notification{
				UserID: userID,
				Title:  "Portal submission completed",
				Message: fmt.Sprintf("Your %s submission was accepted. Confirmation number: %s",
					sub.PortalType, result.ConfirmationNumber),
				Type: "success",
				Data: map[string]string{"portalSubmissionId": sub.ID},
			})
		}

		log.Info("Portal submission attempt succeeded.",
			zap.String("status", result.Status.String()),
			zap.Duration("elapsed", elapsed))
		return
	}

	status := domain.StatusFailed
	if _, err := o.submissions.Update(ctx, sub.ID, store.SubmissionUpdate{
		Status:       &status,
		ErrorMessage: &result.ErrorMessage,
	}); err != nil {
		log.Error("Failed to persist failed attempt.", zap.Error(err))
	}

	o.logAudit(ctx, store.AuditEvent{
		UserID:       userID,
		Action:       "PORTAL_SUBMISSION_FAILED",
		ResourceType: "portal_submission",
		ResourceID:   sub.ID,
		Details: map[string]any{
			"portalType": sub.PortalType.String(),
			"retryCount": sub.RetryCount,
			"error":      result.ErrorMessage,
		},
	})
	if o.metrics != nil {
		o.metrics.ObserveAttempt(sub.PortalType.String(), "failure", elapsed.Seconds())
	}

	log.Warn("Portal submission attempt failed.",
		zap.String("error", result.ErrorMessage),
		zap.Duration("elapsed", elapsed))

	if err := o.failures.HandleFailedSubmission(ctx, sub.ID, userID, result); err != nil {
		log.Error("Failed to route failure into the retry engine.", zap.Error(err))
	}
}

// SubmitForm creates a fresh PENDING submission for a form and immediately
// runs the first attempt.
func (o *Orchestrator) SubmitForm(ctx context.Context, creator SubmissionCreator, formSubmissionID string, portalType domain.PortalType, userID string) (*domain.PortalSubmission, domain.Result, error) {
	sub, err := creator.Create(ctx, formSubmissionID, portalType)
	if err != nil {
		return nil, domain.Result{}, fmt.Errorf("failed to create portal submission: %w", err)
	}
	result, err := o.SubmitFormToPortal(ctx, sub.ID, userID)
	if err != nil {
		return sub, domain.Result{}, err
	}
	refreshed, err := o.submissions.GetByID(ctx, sub.ID)
	if err != nil {
		return sub, result, nil
	}
	return refreshed, result, nil
}

// SubmissionCreator inserts new PENDING submissions. Satisfied by
// store.SubmissionStore.
type SubmissionCreator interface {
	Create(ctx context.Context, formSubmissionID string, portalType domain.PortalType) (*domain.PortalSubmission, error)
}

func lockKey(id string) string { return "submission:" + id }

func (o *Orchestrator) logAudit(ctx context.Context, event store.AuditEvent) {
	if err := o.audit.LogEvent(ctx, event); err != nil {
		o.logger.Warn("Failed to append audit event.",
			zap.String("action", event.Action), zap.Error(err))
	}
}

func (o *Orchestrator) notifyUser(ctx context.Context, n notify.Notification) {
	if err := o.notifier.Send(ctx, n); err != nil {
		o.logger.Warn("Failed to deliver notification.",
			zap.String("user_id", n.UserID), zap.Error(err))
	}
}
