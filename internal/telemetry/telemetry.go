// Package telemetry exposes optimizer progress as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheCollision = "collision"
)

// Recorder holds the optimizer metrics on its own registry. A nil Recorder
// records nothing.
type Recorder struct {
	reg *prometheus.Registry

	swaps         prometheus.Counter
	restarts      prometheus.Counter
	improvements  prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	bestScore     prometheus.Gauge
	climbDuration prometheus.Histogram
}

// NewRecorder registers every metric on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		swaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "kbopt_swaps_total",
			Help: "Total swaps applied to the metric graph",
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "kbopt_restarts_total",
			Help: "Total multi-start restarts completed",
		}),
		improvements: factory.NewCounter(prometheus.CounterOpts{
			Name: "kbopt_improvements_total",
			Help: "Total times a new best layout was found",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbopt_cache_lookups_total",
			Help: "Transposition cache lookups by result",
		}, []string{"result"}),
		bestScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kbopt_best_score",
			Help: "Objective value of the best layout so far",
		}),
		climbDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kbopt_climb_duration_seconds",
			Help:    "Duration of one hill climb",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// AddSwaps counts n graph swaps.
func (r *Recorder) AddSwaps(n uint64) {
	if r == nil || n == 0 {
		return
	}
	r.swaps.Add(float64(n))
}

// Restart counts one finished restart.
func (r *Recorder) Restart() {
	if r == nil {
		return
	}
	r.restarts.Inc()
}

// Best records a new best score.
func (r *Recorder) Best(score float64) {
	if r == nil {
		return
	}
	r.improvements.Inc()
	r.bestScore.Set(score)
}

// CacheLookup counts a transposition cache lookup with the given outcome.
func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveClimb records the duration of one climb.
func (r *Recorder) ObserveClimb(d time.Duration) {
	if r == nil {
		return
	}
	r.climbDuration.Observe(d.Seconds())
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// NewRouter mounts /metrics and /healthz.
func NewRouter(r *Recorder) chi.Router {
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/metrics", r.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return router
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, r *Recorder) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
