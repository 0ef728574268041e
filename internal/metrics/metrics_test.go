package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
)

func TestNormalizeOutcome(t *testing.T) {
	assert.Equal(t, "quota_exhausted", NormalizeOutcome("quota_exhausted"))
	assert.Equal(t, "no_json", NormalizeOutcome("no_json"))
	assert.Equal(t, "other", NormalizeOutcome("exploded"))
}

func TestNormalizeGuardState(t *testing.T) {
	assert.Equal(t, GuardStateOpen, NormalizeGuardState("open"))
	assert.Equal(t, GuardStateHalfOpen, NormalizeGuardState("HALF-OPEN"))
	assert.Equal(t, GuardStateClosed, NormalizeGuardState("unknown state 7"))
}

func TestRecordAttempt(t *testing.T) {
	RecordAttempt("attempt-test", "unavailable", 120)
	RecordAttempt("attempt-test", "unavailable", 80)
	RecordAttempt("attempt-test", "skipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(ProviderAttempts.WithLabelValues("attempt-test", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderAttempts.WithLabelValues("attempt-test", "skipped")))
}

func TestUpdateGuardState(t *testing.T) {
	UpdateGuardState("guard-test", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(GuardState.WithLabelValues("guard-test", GuardStateOpen)))
	assert.Equal(t, 0.0, testutil.ToFloat64(GuardState.WithLabelValues("guard-test", GuardStateClosed)))

	UpdateGuardState("guard-test", "half-open")
	assert.Equal(t, 0.0, testutil.ToFloat64(GuardState.WithLabelValues("guard-test", GuardStateOpen)))
	assert.Equal(t, 1.0, testutil.ToFloat64(GuardState.WithLabelValues("guard-test", GuardStateHalfOpen)))
}

func TestObserver(t *testing.T) {
	obs := NewObserver()
	ctx := context.Background()

	obs.Observe(ctx, llm.Event{Type: llm.EventAttempt, Provider: "observer-test", Outcome: llm.OutcomeQuotaExhausted, Duration: time.Second})
	obs.Observe(ctx, llm.Event{Type: llm.EventBreakerTripped, Provider: "observer-test"})
	obs.Observe(ctx, llm.Event{Type: llm.EventTruncation, Provider: "observer-test", Closed: true})
	obs.Observe(ctx, llm.Event{Type: llm.EventTruncation, Provider: "observer-test", Closed: true, Incomplete: true})
	obs.Observe(ctx, llm.Event{Type: llm.EventRepair, Provider: "observer-test", Success: false, Err: errors.New("still bad")})

	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderAttempts.WithLabelValues("observer-test", "quota_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerTrips.WithLabelValues("observer-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerStatus.WithLabelValues("observer-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Truncations.WithLabelValues("observer-test", "closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Truncations.WithLabelValues("observer-test", "incomplete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Repairs.WithLabelValues("observer-test", "failure")))

	before := testutil.ToFloat64(Generations.WithLabelValues("success"))
	obs.Observe(ctx, llm.Event{Type: llm.EventGenerate, Success: true, Duration: 2 * time.Second})
	assert.Equal(t, before+1, testutil.ToFloat64(Generations.WithLabelValues("success")))
}

type fakeStatus struct {
	statuses []llm.BreakerStatus
	guards   map[string]string
}

func (f fakeStatus) BreakerStatus() []llm.BreakerStatus { return f.statuses }
func (f fakeStatus) GuardStates() map[string]string   { return f.guards }

func TestUpdater(t *testing.T) {
	source := fakeStatus{
		statuses: []llm.BreakerStatus{
			{Provider: "updater-a", State: llm.CircuitOpen},
			{Provider: "updater-b", State: llm.CircuitClosed},
		},
		guards: map[string]string{"updater-b": "open"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := NewUpdater(source, source, time.Hour)
	done := make(chan struct{})
	go func() {
		u.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(CircuitBreakerStatus.WithLabelValues("updater-a")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitBreakerStatus.WithLabelValues("updater-b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(GuardState.WithLabelValues("updater-b", GuardStateOpen)))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "418")))
}

func TestServerMux(t *testing.T) {
	server := NewServer(0, zerolog.Nop())
	RecordError("test_error", ComponentAPI)

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "curriculumgen_errors_total"))
}

func TestServerRunStopsOnCancel(t *testing.T) {
	server := NewServer(0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
