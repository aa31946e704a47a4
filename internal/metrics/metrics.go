// Package metrics exposes guard decisions and enforcement runs to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gzhole/toolguard/internal/ratelimit"
)

// Recorder implements ratelimit.Recorder.
type Recorder struct {
	calls    *prometheus.CounterVec
	blocked  *prometheus.CounterVec
	runaway  *prometheus.CounterVec
	patched  prometheus.Gauge
	already  prometheus.Gauge
	failures prometheus.Gauge
	lastRun  prometheus.Gauge
}

var _ ratelimit.Recorder = (*Recorder)(nil)

// NewRecorder registers metrics with the provided registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolguard_calls_total",
			Help: "Tool calls checked by the limiter",
		}, []string{"tool", "decision"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolguard_blocked_total",
			Help: "Tool calls blocked, by error code",
		}, []string{"code"}),
		runaway: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolguard_runaway_total",
			Help: "Calls failed by the runaway loop detector",
		}, []string{"kind"}),
		patched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolguard_enforce_patched_files",
			Help: "Artifacts patched by the last enforcement run",
		}),
		already: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolguard_enforce_already_patched_files",
			Help: "Artifacts already guarded at the last enforcement run",
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolguard_enforce_failures",
			Help: "Failures recorded by the last enforcement run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolguard_enforce_last_run_timestamp_seconds",
			Help: "Unix time of the last enforcement run",
		}),
	}
	reg.MustRegister(r.calls, r.blocked, r.runaway, r.patched, r.already, r.failures, r.lastRun)
	return r
}

// RecordDecision counts one limiter verdict.
func (r *Recorder) RecordDecision(tool string, d ratelimit.Decision) {
	if d.Allowed {
		r.calls.WithLabelValues(tool, "allow").Inc()
		return
	}
	r.calls.WithLabelValues(tool, "block").Inc()
	if d.Blocked != nil {
		r.blocked.WithLabelValues(d.Blocked.Error).Inc()
	}
}

// RecordRunaway counts one runaway loop error.
func (r *Recorder) RecordRunaway(code string) { r.runaway.WithLabelValues(code).Inc() }

// ObserveRun records the outcome of an enforcement run.
func (r *Recorder) ObserveRun(patched, already, failures int, at time.Time) {
	r.patched.Set(float64(patched))
	r.already.Set(float64(already))
	r.failures.Set(float64(failures))
	r.lastRun.Set(float64(at.Unix()))
}

// Router serves /metrics and /healthz.
func Router(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// WriteTextfile writes every metric in reg to path in the node_exporter
// textfile format.
func WriteTextfile(path string, reg *prometheus.Registry) error {
	return prometheus.WriteToTextfile(path, reg)
}
