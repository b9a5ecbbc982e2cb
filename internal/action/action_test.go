package action

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDryRun(t *testing.T) {
	d := NewDryRun(zap.NewNop())
	res, err := d.Execute(context.Background(), "quarantine_affected_batch", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusSimulated, res.Status)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"quarantine_affected_batch"}, d.Executed())
}

func TestWebhook_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Action != "rebalance_line_capacity" || req.Params["signal_id"] != "sig-9" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"detail":"line 2 slowed","side_effects":["line 2 at 80%","operator paged"]}`))
	}))
	defer srv.Close()

	res, err := NewWebhook(srv.URL, zap.NewNop()).Execute(context.Background(), "rebalance_line_capacity",
		map[string]any{"signal_id": "sig-9"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusSucceeded, res.Status)
	assert.Equal(t, "line 2 slowed", res.Detail)
	assert.Len(t, res.SideEffects, 2)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := NewWebhook(srv.URL, zap.NewNop()).Execute(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusFailed, res.Status)
	assert.False(t, res.Succeeded())
}
