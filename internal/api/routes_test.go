package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type mockAutomation struct{ mock.Mock }

func (m *mockAutomation) RunNow(ctx context.Context) bool {
	return m.Called().Bool(0)
}

func (m *mockAutomation) Status() automation.StatusSnapshot {
	return m.Called().Get(0).(automation.StatusSnapshot)
}

func (m *mockAutomation) RetryFailedPosts(ctx context.Context, subscriberID string) (*automation.RetrySummary, error) {
	args := m.Called(subscriberID)
	summary, _ := args.Get(0).(*automation.RetrySummary)
	return summary, args.Error(1)
}

type mockTriggers struct{ mock.Mock }

func (m *mockTriggers) Trigger(name string) error {
	return m.Called(name).Error(0)
}

type mockPosts struct{ mock.Mock }

func (m *mockPosts) CreatePost(ctx context.Context, subscriberID string, pc *transfer.PostCreation, files []*multipart.FileHeader) (*models.PostingJob, error) {
	args := m.Called(subscriberID, pc.Text, len(files))
	job, _ := args.Get(0).(*models.PostingJob)
	return job, args.Error(1)
}

func (m *mockPosts) List(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	args := m.Called(subscriberID)
	jobs, _ := args.Get(0).([]*models.PostingJob)
	return jobs, args.Error(1)
}

func (m *mockPosts) PostInfo(ctx context.Context, subscriberID, jobID string) (*models.PostingJob, error) {
	args := m.Called(subscriberID, jobID)
	job, _ := args.Get(0).(*models.PostingJob)
	return job, args.Error(1)
}

func (m *mockPosts) Remove(ctx context.Context, subscriberID, jobID string) error {
	return m.Called(subscriberID, jobID).Error(0)
}

type mockQuota struct {
	mock.Mock
	service.QuotaService
}

func (m *mockQuota) Usage(ctx context.Context, subscriberID string, now time.Time) (*service.UsageSummary, error) {
	args := m.Called(subscriberID)
	usage, _ := args.Get(0).(*service.UsageSummary)
	return usage, args.Error(1)
}

type mockPlatforms struct{ mock.Mock }

func (m *mockPlatforms) List(ctx context.Context, subscriberID string) ([]service.Connection, error) {
	args := m.Called(subscriberID)
	connections, _ := args.Get(0).([]service.Connection)
	return connections, args.Error(1)
}

type testServer struct {
	app        *fiber.App
	automation *mockAutomation
	triggers   *mockTriggers
	posts      *mockPosts
	quota      *mockQuota
	platforms  *mockPlatforms
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		app:        fiber.New(),
		automation: &mockAutomation{},
		triggers:   &mockTriggers{},
		posts:      &mockPosts{},
		quota:      &mockQuota{},
		platforms:  &mockPlatforms{},
	}
	cfg := &config.Config{SecretKey: secret, CookieName: "postflow_session"}
	Register(s.app, middleware.NewAuthMiddleware(cfg),
		handlers.NewAutomationHandler(s.automation, s.triggers),
		handlers.NewPostHandler(s.posts, s.quota),
		handlers.NewPlatformHandler(s.platforms))
	t.Cleanup(func() {
		s.automation.AssertExpectations(t)
		s.triggers.AssertExpectations(t)
		s.posts.AssertExpectations(t)
		s.quota.AssertExpectations(t)
		s.platforms.AssertExpectations(t)
	})
	return s
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, req *http.Request, tok string) (int, map[string]any) {
	t.Helper()
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp.StatusCode, out
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/automation/status", nil), "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing token or cookie", body["error"])

	status, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/automation/status", nil), "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/automation/status", nil), token(t, "acme", utils.RoleSubscriber))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCookieAuth(t *testing.T) {
	s := newTestServer(t)
	s.automation.On("Status").Return(automation.StatusSnapshot{})

	req := httptest.NewRequest(http.MethodGet, "/api/automation/status", nil)
	req.AddCookie(&http.Cookie{Name: "postflow_session", Value: token(t, "ops", utils.RoleOperator)})
	status, _ := s.do(t, req, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRunAutomation(t *testing.T) {
	s := newTestServer(t)
	ops := token(t, "ops", utils.RoleOperator)

	s.automation.On("RunNow").Return(true).Once()
	s.automation.On("Status").Return(automation.StatusSnapshot{TotalProcessed: 3, SuccessCount: 2, FailureCount: 1}).Once()
	status, body := s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/run", nil), ops)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["status"].(map[string]any)["totalProcessed"])

	s.automation.On("RunNow").Return(false).Once()
	status, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/run", nil), ops)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAutomationStatus(t *testing.T) {
	s := newTestServer(t)
	last := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s.automation.On("Status").Return(automation.StatusSnapshot{
		LastRunAt:    &last,
		SuccessCount: 5,
		RecentErrors: []automation.ErrorRecord{{JobID: "j1", Message: "boom", Timestamp: last}},
	})

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/automation/status", nil), token(t, "ops", utils.RoleOperator))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["isRunning"])
	assert.Equal(t, "2026-10-15T09:00:00Z", body["lastRunAt"])
	assert.EqualValues(t, 5, body["successCount"])
	assert.Len(t, body["recentErrors"], 1)
}

func TestRetryFailed(t *testing.T) {
	s := newTestServer(t)
	ops := token(t, "ops", utils.RoleOperator)

	s.automation.On("RetryFailedPosts", "acme").Return(&automation.RetrySummary{Reset: 2, Posted: 1, Retrying: 1}, nil).Once()
	status, body := s.do(t, jsonRequest(http.MethodPost, "/api/automation/retry-failed", `{"subscriber_id":"acme"}`), ops)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["reset"])

	s.automation.On("RetryFailedPosts", "").Return(&automation.RetrySummary{}, nil).Once()
	status, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/retry-failed", nil), ops)
	assert.Equal(t, http.StatusOK, status)
}

func TestTriggerJob(t *testing.T) {
	s := newTestServer(t)
	ops := token(t, "ops", utils.RoleOperator)

	s.triggers.On("Trigger", "retention_cleanup").Return(nil)
	s.triggers.On("Trigger", "weekly_report").Return(automation.ErrTriggerBusy)
	s.triggers.On("Trigger", "nope").Return(automation.ErrUnknownTrigger)

	status, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/jobs/retention_cleanup", nil), ops)
	assert.Equal(t, http.StatusOK, status)
	status, body := s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/jobs/weekly_report", nil), ops)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "already running")
	status, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/api/automation/jobs/nope", nil), ops)
	assert.Equal(t, http.StatusNotFound, status)
}

func multipartPost(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("files", "a.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts/create", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreatePost(t *testing.T) {
	s := newTestServer(t)
	acme := token(t, "acme", utils.RoleSubscriber)
	fields := map[string]string{
		"text":           "Hello",
		"scheduled_time": "2026-10-20T09:30",
		"platforms":      `["twitter"]`,
	}

	s.posts.On("CreatePost", "acme", "Hello", 1).Return(&models.PostingJob{ID: "job1", Status: models.JobStatusPending}, nil).Once()
	status, body := s.do(t, multipartPost(t, fields), acme)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "job1", body["post"].(map[string]any)["id"])

	s.posts.On("CreatePost", "acme", "Hello", 1).Return(nil, service.ErrQuotaExceeded).Once()
	status, _ = s.do(t, multipartPost(t, fields), acme)
	assert.Equal(t, http.StatusPaymentRequired, status)

	delete(fields, "text")
	status, _ = s.do(t, multipartPost(t, fields), acme)
	assert.Equal(t, http.StatusBadRequest, status, "validation runs before the service")
}

func TestListAndRemovePosts(t *testing.T) {
	s := newTestServer(t)
	acme := token(t, "acme", utils.RoleSubscriber)

	s.posts.On("List", "acme").Return([]*models.PostingJob{{ID: "a"}, {ID: "b"}}, nil)
	resp, err := s.app.Test(withBearer(httptest.NewRequest(http.MethodGet, "/api/posts", nil), acme), -1)
	require.NoError(t, err)
	var jobs []models.PostingJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 2)

	s.posts.On("PostInfo", "acme", "zzz").Return(nil, service.ErrJobNotFound)
	status, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/posts?id=zzz", nil), acme)
	assert.Equal(t, http.StatusNotFound, status)

	s.posts.On("Remove", "acme", "a").Return(nil)
	s.posts.On("Remove", "acme", "busy").Return(service.ErrJobBusy)
	status, _ = s.do(t, jsonRequest(http.MethodPost, "/api/posts/remove", `{"id":"a"}`), acme)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, jsonRequest(http.MethodPost, "/api/posts/remove", `{"id":"busy"}`), acme)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = s.do(t, jsonRequest(http.MethodPost, "/api/posts/remove", `{}`), acme)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUsage(t *testing.T) {
	s := newTestServer(t)
	s.quota.On("Usage", "acme").Return(&service.UsageSummary{PlanID: "starter", PostsPercentage: 50}, nil)
	s.quota.On("Usage", "ghost").Return(nil, service.ErrNoSubscription)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/usage", nil), token(t, "acme", utils.RoleSubscriber))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "starter", body["plan_id"])

	status, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/usage", nil), token(t, "ghost", utils.RoleSubscriber))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListConnections(t *testing.T) {
	s := newTestServer(t)
	s.platforms.On("List", "acme").Return([]service.Connection{
		{Platform: "facebook", AccountID: "fb-page", Supported: true, Verified: true},
		{Platform: "tiktok", AccountID: "tt-user"},
	}, nil)
	s.platforms.On("List", "ghost").Return(nil, service.ErrSubscriberInactive)

	req := withBearer(httptest.NewRequest(http.MethodGet, "/api/platforms", nil), token(t, "acme", utils.RoleSubscriber))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var connections []service.Connection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&connections))
	require.Len(t, connections, 2)
	assert.True(t, connections[0].Verified)
	assert.False(t, connections[1].Supported)

	status, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/platforms", nil), token(t, "ghost", utils.RoleSubscriber))
	assert.Equal(t, http.StatusNotFound, status)
}

func withBearer(req *http.Request, tok string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}
