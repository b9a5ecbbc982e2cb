package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Observers(t *testing.T) {
	r := NewRegistry()

	r.ObserveStep(domain.StepGatherEvidence, 20*time.Millisecond, nil)
	r.ObserveStep(domain.StepGatherEvidence, 20*time.Millisecond, errors.New("boom"))
	r.ObserveOutcome(domain.OutcomeConvergedAction)
	r.ObserveOutcome(domain.OutcomeConvergedAction)
	r.ObserveDrift(&domain.DriftAlert{Framework: domain.FrameworkRCA, Kind: domain.DriftOveruse})
	r.ObserveDrift(nil)
	r.SetActiveInvestigations(3)
	r.ObserveOracleCall("final_judgment", "ok", 2, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepErrors.WithLabelValues(string(domain.StepGatherEvidence))))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues(string(domain.OutcomeConvergedAction))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.driftAlerts.WithLabelValues("RCA", string(domain.DriftOveruse))))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.oracleCalls.WithLabelValues("final_judgment", "ok")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveHTTP(http.MethodGet, http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `vigil_http_requests_total{code="200",method="GET"} 1`))
}
