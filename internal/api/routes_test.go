package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/funding-collector/internal/api/handlers"
	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/services"
	"github.com/irfndi/funding-collector/internal/state"
)

type fakeCycles struct {
	report services.CycleReport
	cycles int64
	ok     bool
}

func (f fakeCycles) LastCycle() (services.CycleReport, int64, bool) {
	return f.report, f.cycles, f.ok
}

type fakeRunState bool

func (f fakeRunState) Running() bool { return bool(f) }

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func newTestRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, deps)
	return router
}

func newTestStore(t *testing.T) *state.LastSentStore {
	t.Helper()
	store := state.NewLastSentStore(state.Policy{Enabled: true}, nil, nil)
	store.Remember(context.Background(), "paradex:BTC", models.CanonicalFundingRecord{
		Exchange:        "paradex",
		Asset:           "BTC",
		FundingRate:     0.0001,
		NextFundingAtMs: 1_767_283_200_000,
	}, 1_767_268_800_000)
	return store
}

func serve(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_OK(t *testing.T) {
	router := newTestRouter(Dependencies{
		Exchange: "paradex",
		Version:  "1.0.0",
		Collector: fakeCycles{
			report: services.CycleReport{CycleID: "cycle-1", Sent: 2, Records: 3, StartedAt: time.Unix(0, 0).UTC()},
			cycles: 4,
			ok:     true,
		},
		Scheduler: fakeRunState(true),
		State:     newTestStore(t),
		Checks:    map[string]handlers.HealthChecker{"redis": fakeChecker{}},
	})

	w := serve(router, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "paradex", body.Exchange)
	assert.True(t, body.Running)
	assert.Equal(t, int64(4), body.Cycles)
	require.NotNil(t, body.LastCycle)
	assert.Equal(t, "cycle-1", body.LastCycle.CycleID)
	assert.Equal(t, 2, body.LastCycle.Sent)
	assert.Equal(t, map[string]string{"redis": "healthy"}, body.Services)
}

func TestHealth_DegradedWhenBackendFails(t *testing.T) {
	router := newTestRouter(Dependencies{
		Exchange:  "paradex",
		Collector: fakeCycles{},
		Scheduler: fakeRunState(false),
		State:     newTestStore(t),
		Checks: map[string]handlers.HealthChecker{
			"redis":    fakeChecker{},
			"postgres": fakeChecker{err: errors.New("connection refused")},
		},
	})

	w := serve(router, "/health")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Nil(t, body.LastCycle)
	assert.Equal(t, "unhealthy: connection refused", body.Services["postgres"])
	assert.Equal(t, "healthy", body.Services["redis"])
}

func TestState_Snapshot(t *testing.T) {
	router := newTestRouter(Dependencies{Exchange: "paradex", State: newTestStore(t)})

	w := serve(router, "/state")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]models.LastSentState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]models.LastSentState{
		"paradex:BTC": {TimestampMs: 1_767_268_800_000, FundingRate: 0.0001, NextFundingAtMs: 1_767_283_200_000},
	}, body)
}

func TestState_Asset(t *testing.T) {
	router := newTestRouter(Dependencies{Exchange: "paradex", State: newTestStore(t)})

	w := serve(router, "/state/btc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key":"paradex:BTC"`)
	assert.Contains(t, w.Body.String(), `"funding_rate":0.0001`)

	w = serve(router, "/state/eth")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "paradex:ETH")
}
