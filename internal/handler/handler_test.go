package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

type fakeSubmitter struct {
	calls chan string
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{calls: make(chan string, 8)}
}

func (f *fakeSubmitter) SubmitFormToPortal(_ context.Context, id, _ string) (domain.Result, error) {
	f.calls <- id
	return domain.Result{Success: true, Status: domain.StatusCompleted}, nil
}

func (f *fakeSubmitter) waitForCall(t *testing.T) string {
	t.Helper()
	select {
	case id := <-f.calls:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("expected a background submission attempt")
		return ""
	}
}

func (f *fakeSubmitter) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case id := <-f.calls:
		t.Fatalf("unexpected submission attempt for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeReader struct {
	subs map[string]*domain.PortalSubmission
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*domain.PortalSubmission, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (f *fakeReader) GetByFormSubmissionID(_ context.Context, formID string) (*domain.PortalSubmission, error) {
	for _, sub := range f.subs {
		if sub.FormSubmissionID == formID {
			return sub, nil
		}
	}
	return nil, domain.ErrSubmissionNotFound
}

func (f *fakeReader) Update(_ context.Context, id string, upd store.SubmissionUpdate) (*domain.PortalSubmission, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	return sub, nil
}

type fakeCreator struct {
	created *domain.PortalSubmission
	err     error
}

func (f *fakeCreator) Create(_ context.Context, formID string, portalType domain.PortalType) (*domain.PortalSubmission, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &domain.PortalSubmission{
		ID:               "sub-new",
		FormSubmissionID: formID,
		PortalType:       portalType,
		Status:           domain.StatusPending,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	return f.created, nil
}

func newTestServer(t *testing.T, submitter Submitter, reader SubmissionStore, creator SubmissionCreator) *httptest.Server {
	t.Helper()
	h := New(submitter, reader, creator, 3, zaptest.NewLogger(t))
	srv := httptest.NewServer(NewRouter(h, nil, nil, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return srv
}

func subWith(status domain.Status, retryCount int) *domain.PortalSubmission {
	return &domain.PortalSubmission{
		ID:               "sub-1",
		FormSubmissionID: "form-1",
		PortalType:       domain.PortalVisa,
		Status:           status,
		RetryCount:       retryCount,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func TestCreateSubmission(t *testing.T) {
	t.Run("should accept a valid request and start an attempt", func(t *testing.T) {
		submitter := newFakeSubmitter()
		creator := &fakeCreator{}
		srv := newTestServer(t, submitter, &fakeReader{}, creator)

		resp, err := http.Post(srv.URL+"/api/v1/submissions", "application/json",
			strings.NewReader(`{"formSubmissionId":"form-1","portalType":"VISA","userId":"user-1"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		var body submissionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "sub-new", body.ID)
		assert.Equal(t, "PENDING", body.Status)
		assert.Equal(t, "sub-new", submitter.waitForCall(t))
	})

	t.Run("should reject an unknown portal type", func(t *testing.T) {
		submitter := newFakeSubmitter()
		srv := newTestServer(t, submitter, &fakeReader{}, &fakeCreator{})

		resp, err := http.Post(srv.URL+"/api/v1/submissions", "application/json",
			strings.NewReader(`{"formSubmissionId":"form-1","portalType":"FAX"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		submitter.assertNoCall(t)
	})

	t.Run("should reject a missing form id", func(t *testing.T) {
		submitter := newFakeSubmitter()
		srv := newTestServer(t, submitter, &fakeReader{}, &fakeCreator{})

		resp, err := http.Post(srv.URL+"/api/v1/submissions", "application/json",
			strings.NewReader(`{"portalType":"VISA"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		submitter.assertNoCall(t)
	})
}

func TestRetrySubmission(t *testing.T) {
	t.Run("should accept a retry for a failed submission", func(t *testing.T) {
		submitter := newFakeSubmitter()
		reader := &fakeReader{subs: map[string]*domain.PortalSubmission{"sub-1": subWith(domain.StatusFailed, 1)}}
		srv := newTestServer(t, submitter, reader, &fakeCreator{})

		resp, err := http.Post(srv.URL+"/api/v1/submissions/sub-1/retry", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		// RETRYING must be visible to a status poll before the orchestrator
		// picks the attempt up.
		var body submissionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "RETRYING", body.Status)
		assert.Equal(t, domain.StatusRetrying, reader.subs["sub-1"].Status)
		assert.Equal(t, "sub-1", submitter.waitForCall(t))
	})

	t.Run("should refuse retry for non-retryable statuses", func(t *testing.T) {
		for _, status := range []domain.Status{
			domain.StatusPending, domain.StatusInProgress,
			domain.StatusSubmitted, domain.StatusRetryScheduled, domain.StatusCompleted,
		} {
			t.Run(string(status), func(t *testing.T) {
				submitter := newFakeSubmitter()
				reader := &fakeReader{subs: map[string]*domain.PortalSubmission{"sub-1": subWith(status, 1)}}
				srv := newTestServer(t, submitter, reader, &fakeCreator{})

				resp, err := http.Post(srv.URL+"/api/v1/submissions/sub-1/retry", "application/json", nil)
				require.NoError(t, err)
				defer resp.Body.Close()

				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				var body errorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "cannot retry submission with status "+string(status), body.Error)
				submitter.assertNoCall(t)
			})
		}
	})

	t.Run("should refuse retry once the budget is spent", func(t *testing.T) {
		submitter := newFakeSubmitter()
		reader := &fakeReader{subs: map[string]*domain.PortalSubmission{"sub-1": subWith(domain.StatusFailed, 3)}}
		srv := newTestServer(t, submitter, reader, &fakeCreator{})

		resp, err := http.Post(srv.URL+"/api/v1/submissions/sub-1/retry", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body.Error, "maximum retry attempts reached")
		submitter.assertNoCall(t)
	})

	t.Run("should return 404 for an unknown submission", func(t *testing.T) {
		submitter := newFakeSubmitter()
		srv := newTestServer(t, submitter, &fakeReader{}, &fakeCreator{})

		resp, err := http.Post(srv.URL+"/api/v1/submissions/ghost/retry", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetSubmissionStatus(t *testing.T) {
	sub := subWith(domain.StatusRetryScheduled, 2)
	sub.ErrorMessage = "attempt 2 failed: timeout (retry in 4m0s)"
	reader := &fakeReader{subs: map[string]*domain.PortalSubmission{"sub-1": sub}}
	srv := newTestServer(t, newFakeSubmitter(), reader, &fakeCreator{})

	resp, err := http.Get(srv.URL + "/api/v1/submissions/sub-1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "RETRY_SCHEDULED", body.Status)
	assert.Equal(t, 2, body.RetryCount)
	assert.Contains(t, body.ErrorMessage, "retry in 4m0s")
}

func TestGetSubmissionForForm(t *testing.T) {
	reader := &fakeReader{subs: map[string]*domain.PortalSubmission{"sub-1": subWith(domain.StatusCompleted, 1)}}
	srv := newTestServer(t, newFakeSubmitter(), reader, &fakeCreator{})

	resp, err := http.Get(srv.URL + "/api/v1/forms/form-1/submission")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body submissionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sub-1", body.ID)
	assert.Equal(t, "COMPLETED", body.Status)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeSubmitter(), &fakeReader{}, &fakeCreator{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
