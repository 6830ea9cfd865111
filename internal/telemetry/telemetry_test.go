package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.AddSwaps(10)
	r.AddSwaps(5)
	r.Restart()
	r.Best(12.5)
	r.Best(11)
	r.CacheLookup(CacheHit)
	r.CacheLookup(CacheMiss)
	r.CacheLookup(CacheMiss)
	r.ObserveClimb(3 * time.Millisecond)

	assert.Equal(t, 15.0, testutil.ToFloat64(r.swaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.restarts))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.improvements))
	assert.Equal(t, 11.0, testutil.ToFloat64(r.bestScore))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues(CacheMiss)))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.AddSwaps(3)
	r.Restart()
	r.Best(1)
	r.CacheLookup(CacheCollision)
	r.ObserveClimb(time.Second)
	assert.Nil(t, r.Registry())
}

func TestRouterServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.Restart()
	router := NewRouter(r)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kbopt_restarts_total 1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
