package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
	"github.com/Dipuraj1New/careerireland-portals/internal/notify"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

type fakeSubmissionStore struct {
	mu   sync.Mutex
	subs map[string]*domain.PortalSubmission
}

func newFakeSubmissionStore(subs ...*domain.PortalSubmission) *fakeSubmissionStore {
	s := &fakeSubmissionStore{subs: make(map[string]*domain.PortalSubmission)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeSubmissionStore) GetByID(_ context.Context, id string) (*domain.PortalSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeSubmissionStore) Update(_ context.Context, id string, upd store.SubmissionUpdate) (*domain.PortalSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.RetryCount != nil {
		sub.RetryCount = *upd.RetryCount
	}
	if upd.ErrorMessage != nil {
		sub.ErrorMessage = *upd.ErrorMessage
	}
	if upd.NextRetryAt != nil {
		sub.NextRetryAt = upd.NextRetryAt
	} else if upd.ClearNextRetryAt {
		sub.NextRetryAt = nil
	}
	if upd.LastAttemptAt != nil {
		sub.LastAttemptAt = upd.LastAttemptAt
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeSubmissionStore) ListDueForRetry(_ context.Context, now time.Time, limit int) ([]domain.PortalSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PortalSubmission
	for _, sub := range s.subs {
		if sub.Status == domain.StatusRetryScheduled && sub.NextRetryAt != nil && !sub.NextRetryAt.After(now) {
			out = append(out, *sub)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSubmissionStore) get(id string) domain.PortalSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.subs[id]
}

type fakeAudit struct {
	mu     sync.Mutex
	events []store.AuditEvent
}

func (a *fakeAudit) LogEvent(_ context.Context, event store.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSubmitter) SubmitFormToPortal(_ context.Context, id, _ string) (domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return domain.Result{Success: true, Status: domain.StatusCompleted}, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type engineFixture struct {
	engine    *Engine
	store     *fakeSubmissionStore
	audit     *fakeAudit
	notifier  *fakeNotifier
	submitter *fakeSubmitter
	scheduler *Scheduler
	clock     *fakeClock
}

func newEngineFixture(t *testing.T, subs ...*domain.PortalSubmission) *engineFixture {
	t.Helper()
	clock := newFakeClock()
	logger := zaptest.NewLogger(t)
	f := &engineFixture{
		store:     newFakeSubmissionStore(subs...),
		audit:     &fakeAudit{},
		notifier:  &fakeNotifier{},
		submitter: &fakeSubmitter{},
		scheduler: NewScheduler(clock, logger),
		clock:     clock,
	}
	cfg := config.RetryConfig{BaseDelay: time.Minute, MaxAttempts: 3, ResumeScanLimit: 100}
	engine, err := NewEngine(cfg, f.store, f.notifier, f.audit, f.scheduler, nil, clock, logger)
	require.NoError(t, err)
	engine.Bind(f.submitter)
	f.engine = engine
	return f
}

func failedSub(id string, retryCount int) *domain.PortalSubmission {
	return &domain.PortalSubmission{
		ID:               id,
		FormSubmissionID: "form-" + id,
		PortalType:       domain.PortalImmigration,
		Status:           domain.StatusFailed,
		RetryCount:       retryCount,
	}
}

func TestHandleFailedSubmissionRetryable(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 0))

	result := domain.Failure("network error while reaching portal")
	require.NoError(t, f.engine.HandleFailedSubmission(context.Background(), "sub-1", "user-1", result))

	sub := f.store.get("sub-1")
	assert.Equal(t, domain.StatusRetryScheduled, sub.Status)
	assert.Equal(t, 1, sub.RetryCount, "scheduling charges the budget")
	require.NotNil(t, sub.NextRetryAt)
	// First failed attempt: delay is base * 2^1.
	assert.Equal(t, f.clock.Now().Add(2*time.Minute), *sub.NextRetryAt)
	assert.Contains(t, sub.ErrorMessage, "attempt 1 failed")
	assert.Equal(t, 1, f.scheduler.Pending())
	assert.Contains(t, f.audit.actions(), "PORTAL_RETRY_SCHEDULED")
	assert.Zero(t, f.notifier.count(), "retryable failures must not alert the user")
}

func TestHandleFailedSubmissionBackoffProgression(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 1))

	result := domain.Failure("gateway timeout from portal")
	require.NoError(t, f.engine.HandleFailedSubmission(context.Background(), "sub-1", "user-1", result))

	sub := f.store.get("sub-1")
	assert.Equal(t, 2, sub.RetryCount)
	require.NotNil(t, sub.NextRetryAt)
	// Second failed attempt: base * 2^2.
	assert.Equal(t, f.clock.Now().Add(4*time.Minute), *sub.NextRetryAt)
}

func TestScheduleRetryDelaySequence(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 0))

	// Four consecutive retryable failures: three scheduled delays at 2x, 4x
	// and 8x base, then the budget is spent and the submission fails for good.
	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, f.engine.ScheduleRetry(context.Background(), "sub-1", "user-1", "connection refused"))
		sub := f.store.get("sub-1")
		assert.Equal(t, domain.StatusRetryScheduled, sub.Status)
		assert.Equal(t, attempt, sub.RetryCount)
		require.NotNil(t, sub.NextRetryAt)
		delays = append(delays, sub.NextRetryAt.Sub(f.clock.Now()))
	}
	assert.Equal(t, []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute}, delays)

	require.NoError(t, f.engine.ScheduleRetry(context.Background(), "sub-1", "user-1", "connection refused"))
	sub := f.store.get("sub-1")
	assert.Equal(t, domain.StatusFailed, sub.Status)
	assert.Equal(t, 3, sub.RetryCount, "the count never exceeds the cap")
	assert.Contains(t, sub.ErrorMessage, "maximum retry attempts reached (3)")
	assert.Equal(t, 3, f.scheduler.Pending(), "no fourth retry may be armed")
}

func TestHandleFailedSubmissionTerminal(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 1))

	result := domain.Failure("validation failed for field nationality")
	require.NoError(t, f.engine.HandleFailedSubmission(context.Background(), "sub-1", "user-1", result))

	sub := f.store.get("sub-1")
	assert.Equal(t, domain.StatusFailed, sub.Status)
	assert.Nil(t, sub.NextRetryAt)
	assert.Equal(t, 0, f.scheduler.Pending(), "terminal failures must not arm a retry")
	assert.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.audit.actions(), "PORTAL_TERMINAL_FAILURE")
}

func TestHandleFailedSubmissionEmptyMessageIsNoop(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 1))

	require.NoError(t, f.engine.HandleFailedSubmission(context.Background(), "sub-1", "user-1", domain.Result{}))

	assert.Equal(t, 0, f.scheduler.Pending())
	assert.Empty(t, f.audit.actions())
}

func TestScheduleRetryExhaustsBudget(t *testing.T) {
	f := newEngineFixture(t, failedSub("sub-1", 3))

	require.NoError(t, f.engine.ScheduleRetry(context.Background(), "sub-1", "user-1", "connection reset by peer"))

	sub := f.store.get("sub-1")
	assert.Equal(t, domain.StatusFailed, sub.Status)
	assert.Contains(t, sub.ErrorMessage, "maximum retry attempts reached (3)")
	assert.Equal(t, 0, f.scheduler.Pending())
	assert.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.audit.actions(), "PORTAL_RETRY_EXHAUSTED")
}

func TestRunScheduledTaskInvokesSubmitter(t *testing.T) {
	sub := failedSub("sub-1", 1)
	sub.Status = domain.StatusRetryScheduled
	f := newEngineFixture(t, sub)

	f.engine.RunScheduledTask(context.Background(), Task{SubmissionID: "sub-1", UserID: "user-1"})

	assert.Equal(t, 1, f.submitter.callCount())
}

func TestRunScheduledTaskSkipsWhenStateMovedOn(t *testing.T) {
	tests := []struct {
		name   string
		status domain.Status
	}{
		{"completed", domain.StatusCompleted},
		{"failed", domain.StatusFailed},
		{"in progress", domain.StatusInProgress},
		{"pending", domain.StatusPending},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := failedSub("sub-1", 1)
			sub.Status = tc.status
			f := newEngineFixture(t, sub)

			f.engine.RunScheduledTask(context.Background(), Task{SubmissionID: "sub-1"})

			assert.Zero(t, f.submitter.callCount(), "a late timer must not touch a submission that moved on")
			assert.Equal(t, tc.status, f.store.get("sub-1").Status)
		})
	}
}

func TestRunScheduledTaskMissingSubmission(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.RunScheduledTask(context.Background(), Task{SubmissionID: "ghost"})

	assert.Zero(t, f.submitter.callCount())
	assert.Contains(t, f.audit.actions(), "PORTAL_RETRY_ERROR")
}

func TestResumeScheduledReArmsPersistedRetries(t *testing.T) {
	sub := failedSub("sub-1", 1)
	sub.Status = domain.StatusRetryScheduled
	f := newEngineFixture(t)
	at := f.clock.Now().Add(90 * time.Second)
	sub.NextRetryAt = &at
	f.store.subs["sub-1"] = sub

	require.NoError(t, f.engine.ResumeScheduled(context.Background(), 100))

	assert.Equal(t, 1, f.scheduler.Pending())
}
