package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, apiKey string) *App {
	t.Helper()
	t.Setenv("API_KEY", apiKey)
	t.Setenv("KNOWLEDGE_DIR", "")
	t.Setenv("ACTION_WEBHOOK_URL", "")
	t.Setenv("EMBEDDING_PROVIDER", "none")

	app, err := NewApp(Options{Oracle: oracle.NewMockClient()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func serve(app *App, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, "")

	rec := serve(app, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.PolicyVersion)
	assert.NotEmpty(t, body.Build)

	_, err := app.Policies.Load(context.Background())
	require.NoError(t, err)
	rec = serve(app, http.MethodGet, "/health", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.PolicyVersion)
}

func TestV1RequiresAPIKey(t *testing.T) {
	app := newTestApp(t, "s3cret")
	_, err := app.Policies.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(app, http.MethodGet, "/v1/policy/", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(app, http.MethodGet, "/v1/policy/", "wrong", "").Code)
	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/v1/policy/", "s3cret", "").Code)
	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/health", "", "").Code)
}

func TestInvestigationRoundTrip(t *testing.T) {
	app := newTestApp(t, "")
	_, err := app.Policies.Load(context.Background())
	require.NoError(t, err)

	signal := `{"id":"sig-cold-1","type":"temperature_excursion","description":"Cold room 2 at 7C","data":{"minutes_to_limit":40}}`
	rec := serve(app, http.MethodPost, "/v1/investigations/", "", signal)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "end", st["step"])
	assert.Equal(t, "converged_action", st["outcome"])
	assert.Equal(t, "quarantine_affected_batch", st["selected_action"])

	rec = serve(app, http.MethodGet, "/v1/investigations/sig-cold-1/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"converged_action"`)

	assert.Equal(t, http.StatusNotFound, serve(app, http.MethodGet, "/v1/investigations/missing/", "", "").Code)

	rec = serve(app, http.MethodGet, "/v1/drift", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sample_size":1`)

	rec = serve(app, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vigil_http_requests_total")
	assert.Contains(t, rec.Body.String(), `outcome="converged_action"`)
}
