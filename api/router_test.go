package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorged/core"
	"gorged/database"
	"gorged/interceptor"
	"gorged/metrics"
	"gorged/models"
	"gorged/pipeline"
	"gorged/version"
)

type testEnv struct {
	server    *httptest.Server
	pause     *core.PauseSwitch
	persisted []bool
	failSave  bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := interceptor.Default()
	require.NoError(t, err)
	rules, err := interceptor.ParseRules([]string{"disable:^twitter-"})
	require.NoError(t, err)
	p, err := pipeline.New(reg, rules)
	require.NoError(t, err)

	env := &testEnv{}
	env.pause = core.NewPauseSwitch(false, nil, func(v bool) error {
		if env.failSave {
			return errors.New("disk full")
		}
		env.persisted = append(env.persisted, v)
		return nil
	})
	env.server = httptest.NewServer(NewHandler(Services{
		Interceptors: p,
		Pause:        env.pause,
		Metrics:      metrics.NewRecorder(nil),
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, reqBody string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, strings.NewReader(reqBody))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info models.VersionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, version.AppVersion, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)

	resp, _ = env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListInterceptors(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/interceptors", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.InterceptorInfo
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, len(interceptor.Catalog()))
	assert.Equal(t, "stackexchange-remove-landing-feed", all[0].ID)

	_, body = env.do(t, http.MethodGet, "/api/interceptors?tag=site:twitter", "")
	var twitter []models.InterceptorInfo
	require.NoError(t, json.Unmarshal(body, &twitter))
	require.Len(t, twitter, 3)
	for _, info := range twitter {
		assert.True(t, info.DefaultEnabled)
		assert.False(t, info.Enabled, info.ID)
	}

	_, body = env.do(t, http.MethodGet, "/api/interceptors?enabled=true", "")
	var enabled []models.InterceptorInfo
	require.NoError(t, json.Unmarshal(body, &enabled))
	for _, info := range enabled {
		assert.True(t, info.Enabled)
		assert.False(t, strings.HasPrefix(info.ID, "twitter-"))
	}

	resp, _ = env.do(t, http.MethodGet, "/api/interceptors?enabled=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetInterceptor(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/interceptors/reddit-remove-homepage-feed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info models.InterceptorInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "reddit-remove-homepage-feed", info.ID)
	assert.True(t, info.Enabled)

	resp, body = env.do(t, http.MethodGet, "/api/interceptors/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "missing")
}

func TestPauseRoutes(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/pause", "")
	assert.JSONEq(t, `{"paused":false}`, string(body))

	resp, body := env.do(t, http.MethodPut, "/api/pause", `{"paused":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"paused":true}`, string(body))
	assert.True(t, env.pause.Paused())
	assert.Equal(t, []bool{true}, env.persisted)

	resp, _ = env.do(t, http.MethodPut, "/api/pause", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, "/api/pause", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.failSave = true
	resp, _ = env.do(t, http.MethodPut, "/api/pause", `{"paused":false}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestEventRoutes(t *testing.T) {
	require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "gorged.db")))
	defer database.Close()
	env := newTestEnv(t)

	now := time.Now().UTC()
	require.NoError(t, database.RecordInterceptEvents([]models.InterceptEvent{
		{ResponseID: "r1", Timestamp: now, URL: "https://www.reddit.com/", InterceptorID: "reddit-remove-homepage-feed", Outcome: models.OutcomeApplied},
		{ResponseID: "r2", Timestamp: now, URL: "https://superuser.com/q/1", InterceptorID: "stackexchange-remove-related", Outcome: models.OutcomeFailed, Error: models.NullString("node-removal: selector not found")},
	}))

	resp, body := env.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "r2", events[0]["response_id"])

	_, body = env.do(t, http.MethodGet, "/api/events?outcome=failed&limit=5", "")
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "stackexchange-remove-related", events[0]["interceptor_id"])

	resp, _ = env.do(t, http.MethodGet, "/api/events?outcome=weird", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gorged_rewrite_duration_seconds")
}
