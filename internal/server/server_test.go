package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"datasync/internal/auth"
	"datasync/internal/config"
	"datasync/internal/observability"
	"datasync/internal/service"
	"datasync/internal/testutil"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) Configured() bool { return true }

func (stubProvider) AuthorizeURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (stubProvider) ValidateToken(ctx context.Context, token string) (*auth.Identity, error) {
	if token != "ghp_good" {
		return nil, apperrors.AuthError("GitHub token is invalid or lacks permission", nil)
	}
	return &auth.Identity{Login: "octocat"}, nil
}

func (p stubProvider) Exchange(ctx context.Context, code string) (string, *auth.Identity, error) {
	id, err := p.ValidateToken(ctx, "ghp_good")
	return "ghp_good", id, err
}

type harness struct {
	srv    *httptest.Server
	prefix string
	dir    string
	remote *testutil.Remote
	hub    *Hub
}

func newHarness(t *testing.T, prefix string) *harness {
	t.Helper()
	testutil.RequireGit(t)
	t.Setenv(config.EnvEncryptionKey, "server-test-key")

	root := t.TempDir()
	store := config.NewStore(filepath.Join(root, "state", "config.yaml"), &config.Vault{}, nil)
	require.NoError(t, store.Load())

	system := observability.NewSystem(nil, time.Second)
	hub := NewHub(nil)
	dir := filepath.Join(root, "data")

	svc, err := service.New(service.Options{
		DataDir:       dir,
		Store:         store,
		Provider:      stubProvider{},
		Events:        hub,
		Metrics:       system.Metrics,
		SchedulerUnit: time.Hour,
	})
	require.NoError(t, err)
	for _, c := range svc.HealthChecks() {
		system.Health.RegisterCheck(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(New(svc, system, hub, prefix).Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = svc.Shutdown(context.Background())
	})

	return &harness{srv: srv, prefix: normalizePrefix(prefix), dir: dir, remote: testutil.NewRemote(t, "main"), hub: hub}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, h.srv.URL+h.prefix+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		out["location"] = loc
	}
	return resp.StatusCode, out
}

func (h *harness) setup(t *testing.T) {
	t.Helper()
	code, _ := h.do(t, http.MethodPost, "/config", map[string]interface{}{"repoUrl": h.remote.Dir, "branch": "main"})
	require.Equal(t, http.StatusOK, code)
	code, body := h.do(t, http.MethodPost, "/git/init", nil)
	require.Equal(t, http.StatusOK, code, body)
}

func TestConfigRoundTrip(t *testing.T) {
	h := newHarness(t, "/")

	code, body := h.do(t, http.MethodGet, "/config", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "main", body["branch"])
	assert.Equal(t, float64(models.DefaultDisplayInterval), body["syncInterval"])
	assert.Equal(t, false, body["hasToken"])

	code, body = h.do(t, http.MethodPost, "/config", `{"repoUrl":"`+h.remote.Dir+`","autoSync":false,"syncInterval":"15"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	_, body = h.do(t, http.MethodGet, "/config", nil)
	assert.Equal(t, float64(15), body["syncInterval"])
	assert.Equal(t, h.remote.Dir, body["repoUrl"])
	assert.NotContains(t, body, "github_token")
}

func TestConfigRejectsBadInput(t *testing.T) {
	h := newHarness(t, "/")

	code, _ := h.do(t, http.MethodPost, "/config", `{"repoUrl":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/config", map[string]string{"repoUrl": "ftp:nope"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusAndSyncBeforeInit(t *testing.T) {
	h := newHarness(t, "/")

	code, body := h.do(t, http.MethodGet, "/git/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["initialized"])
	assert.Equal(t, []interface{}{}, body["changes"])

	code, body = h.do(t, http.MethodPost, "/git/sync/push", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Repository not initialized", body["message"])
}

func TestSyncAndUndo(t *testing.T) {
	h := newHarness(t, "/")
	h.setup(t)
	helper := testutil.NewTestHelper(t)

	helper.WriteFile(h.dir, "a.txt", "a1\n")
	code, body := h.do(t, http.MethodGet, "/git/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"?? a.txt"}, body["changes"])

	code, body = h.do(t, http.MethodPost, "/git/sync/push", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["undoAvailable"], "nothing to return to before the first commit")

	code, body = h.do(t, http.MethodPost, "/undo-sync", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no snapshot available", body["message"])

	h.remote.PushFromClone(t, "b.txt", "b1\n")
	code, body = h.do(t, http.MethodPost, "/git/sync/pull", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["undoAvailable"])

	_, body = h.do(t, http.MethodGet, "/undo-availability", nil)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "pull", body["operation"])
	assert.NotNil(t, body["timestamp"])

	code, body = h.do(t, http.MethodPost, "/undo-sync", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "pull", body["operation"])
	assert.Empty(t, helper.ReadFile(h.dir, "b.txt"))

	_, body = h.do(t, http.MethodGet, "/undo-availability", nil)
	assert.Equal(t, false, body["available"])
	assert.Equal(t, "", body["operation"])
	assert.Nil(t, body["timestamp"])

	_, body = h.do(t, http.MethodGet, "/config", nil)
	assert.NotNil(t, body["lastSync"])
}

func TestPullConflictIs409(t *testing.T) {
	h := newHarness(t, "/")
	h.setup(t)

	testutil.NewTestHelper(t).WriteFile(h.dir, "a.txt", "a1\n")
	code, _ := h.do(t, http.MethodPost, "/git/sync/push", nil)
	require.Equal(t, http.StatusOK, code)

	h.remote.PushFromClone(t, "a.txt", "remote\n")
	testutil.CommitFile(t, h.dir, "a.txt", "local\n", "local edit")

	code, body := h.do(t, http.MethodPost, "/git/sync/pull", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "merge_conflict", body["error"])

	code, body = h.do(t, http.MethodPost, "/git/sync/force-overwrite-local", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, h.remote.Head(t), testutil.Git(t, h.dir, "rev-parse", "HEAD"))
}

func TestAuthRoutes(t *testing.T) {
	h := newHarness(t, "/")

	code, _ := h.do(t, http.MethodPost, "/auth/token", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/auth/token", map[string]string{"token": "ghp_bad"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := h.do(t, http.MethodPost, "/auth/token", map[string]string{"token": "ghp_good"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "octocat", body["username"])

	_, body = h.do(t, http.MethodGet, "/auth/status", nil)
	assert.Equal(t, true, body["authorized"])
	assert.Equal(t, "octocat", body["username"])

	_, body = h.do(t, http.MethodGet, "/config", nil)
	assert.Equal(t, true, body["hasToken"])
}

func TestOAuthRoutes(t *testing.T) {
	h := newHarness(t, "/")

	code, body := h.do(t, http.MethodGet, "/auth/github/authorize", nil)
	require.Equal(t, http.StatusFound, code)
	loc, err := url.Parse(body["location"].(string))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	code, _ = h.do(t, http.MethodPost, "/auth/github/callback", map[string]string{"state": state})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/auth/github/callback", map[string]string{"code": "c", "state": "forged"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = h.do(t, http.MethodPost, "/auth/github/callback", map[string]string{"code": "c", "state": state})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestPrefixMount(t *testing.T) {
	h := newHarness(t, "/api/plugins/data-sync/")

	code, _ := h.do(t, http.MethodGet, "/config", nil)
	assert.Equal(t, http.StatusOK, code)

	resp, err := http.Get(h.srv.URL + "/config")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsAndHealth(t *testing.T) {
	h := newHarness(t, "/")
	h.do(t, http.MethodGet, "/config", nil)

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(data), `datasync_http_requests_total{code="200",route="/config"} 1`)

	code, body := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "DEGRADED", body["status"], "data dir and config file do not exist yet")
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t, "/")
	h.setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	testutil.NewTestHelper(t).WaitFor(func() bool { return h.hub.Clients() == 1 }, 5*time.Second, "subscriber registered")

	testutil.NewTestHelper(t).WriteFile(h.dir, "a.txt", "a1\n")
	code, _ := h.do(t, http.MethodPost, "/git/sync/push", nil)
	require.Equal(t, http.StatusOK, code)

	// The init event may or may not reach this subscriber.
	var ev service.Event
	for ev.Operation != models.OperationPush {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &ev))
	}
	assert.True(t, ev.Success)
	assert.NotEmpty(t, ev.ID)
}

func TestFailureResponse(t *testing.T) {
	tests := []struct {
		kind   apperrors.Kind
		status int
	}{
		{apperrors.KindMergeConflict, http.StatusConflict},
		{apperrors.KindNonFastForward, http.StatusConflict},
		{apperrors.KindOperationInProgress, http.StatusConflict},
		{apperrors.KindAuthFailure, http.StatusUnauthorized},
		{apperrors.KindStashApplyFailed, http.StatusConflict},
		{apperrors.KindGeneral, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			status, _ := failureResponse(models.Failed(models.OperationPush, tt.kind, "msg", "details"))
			assert.Equal(t, tt.status, status)
		})
	}

	_, body := failureResponse(models.Failed(models.OperationPull, apperrors.KindStashApplyFailed, "partial", ""))
	partial, ok := body.(partialBody)
	require.True(t, ok)
	assert.True(t, partial.Partial)
	assert.False(t, partial.Success)
	assert.Equal(t, models.OperationPull, partial.Operation)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(apperrors.OperationInProgress("push")))
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.AuthError("bad", nil)))
	assert.Equal(t, http.StatusForbidden, statusFor(apperrors.New(apperrors.ErrCodeOAuthStateInvalid, "state")))
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.New(apperrors.ErrCodeSnapshotUnavailable, "none")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperrors.NetworkError("down", nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

func TestWriteOutcomeFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	writeUndoOutcome(rec, models.Failed(models.OperationPush, apperrors.KindStashApplyFailed, "working changes not restored", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var partial map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &partial))
	assert.Equal(t, true, partial["partial"])
	assert.Equal(t, "stash_apply_failed", partial["error"])
	assert.Equal(t, "push", partial["operation"])

	rec = httptest.NewRecorder()
	writeSyncOutcome(rec, models.Failed(models.OperationPush, apperrors.KindGeneral, "Failed to add files", "fatal"), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var failure map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	assert.Equal(t, false, failure["success"])
	assert.Equal(t, "Failed to add files", failure["message"])
	assert.Equal(t, "fatal", failure["details"])
}
