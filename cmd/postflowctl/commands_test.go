package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   string
}

func fakeServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	srv, requests := fakeServer(t, http.StatusOK, `{
		"isRunning": false,
		"lastRunAt": "2026-10-15T09:00:00Z",
		"totalProcessed": 5, "successCount": 4, "failureCount": 1,
		"recentErrors": [{"jobId": "j1", "message": "twitter: 503", "timestamp": "2026-10-15T09:00:01Z"}]
	}`)

	out, err := execute(t, "status", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, recordedRequest{method: http.MethodGet, path: "/api/automation/status", auth: "Bearer tok"}, (*requests)[0])
	assert.Contains(t, out, "last run:  2026-10-15T09:00:00Z")
	assert.Contains(t, out, "processed: 5 (ok 4, failed 1)")
	assert.Contains(t, out, "j1 twitter: 503")
}

func TestRunCommandReportsConflict(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusConflict, `{"error":"A scheduler tick is already running"}`)

	_, err := execute(t, "run", "--server", srv.URL, "--token", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), "409")
}

func TestRetryFailedCommand(t *testing.T) {
	srv, requests := fakeServer(t, http.StatusOK, `{"reset":3,"posted":2,"retrying":1,"failed":0}`)

	out, err := execute(t, "retry-failed", "--subscriber", "acme", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Equal(t, "reset=3 posted=2 retrying=1 failed=0\n", out)

	require.Len(t, *requests, 1)
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte((*requests)[0].body), &body))
	assert.Equal(t, map[string]string{"subscriber_id": "acme"}, body)
}

func TestTriggerCommand(t *testing.T) {
	srv, requests := fakeServer(t, http.StatusOK, `{"message":"Job triggered","job":"weekly_report"}`)

	out, err := execute(t, "trigger", "weekly_report", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Job triggered: weekly_report\n", out)
	assert.Equal(t, "/api/automation/jobs/weekly_report", (*requests)[0].path)

	_, err = execute(t, "trigger", "--server", srv.URL, "--token", "tok")
	assert.Error(t, err, "a job name is required")
}

func TestCommandsRequireToken(t *testing.T) {
	t.Setenv("POSTFLOW_TOKEN", "")
	srv, requests := fakeServer(t, http.StatusOK, `{}`)

	_, err := execute(t, "status", "--server", srv.URL)
	require.Error(t, err)
	assert.Empty(t, *requests)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	out, err := execute(t, "token", "--user", "ops", "--role", utils.RoleOperator)
	require.NoError(t, err)

	claims, err := utils.ValidateToken("test-secret", string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)
	assert.Equal(t, utils.RoleOperator, claims.Role)

	_, err = execute(t, "token", "--role", "admin")
	assert.Error(t, err)
}
