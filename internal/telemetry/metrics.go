package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/roach88/kiln/internal/build"
)

const namespace = "kiln"

// Metrics exports runner activity as Prometheus metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	builds     *prometheus.CounterVec
	resets     *prometheus.CounterVec
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	inFlight   prometheus.Gauge

	mu     sync.Mutex
	starts map[*build.Target][]time.Time
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_builds_total",
				Help:      "Target builds finished, by result status and whether the cache served them.",
			},
			[]string{"status", "cached"},
		),
		resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_resets_total",
				Help:      "Target resets finished, by result status.",
			},
			[]string{"status"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_executions_total",
				Help:      "Service invocations made for targets, by phase.",
			},
			[]string{"phase"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_build_duration_seconds",
			Help:      "Time from build start to build end.",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets_in_flight",
			Help:      "Builds started and not yet ended.",
		}),
		starts: make(map[*build.Target][]time.Time),
	}
	m.registry.MustRegister(m.builds, m.resets, m.executions, m.duration, m.inFlight)
	return m
}

// Attach subscribes m to every event of r.
func (m *Metrics) Attach(r *build.Runner) {
	r.On(build.EventAll, m.observe)
}

func (m *Metrics) observe(ev build.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case build.EventTargetBuildStart:
		m.inFlight.Inc()
		m.starts[ev.Target] = append(m.starts[ev.Target], ev.Timestamp)
	case build.EventTargetBuildExecute:
		m.executions.WithLabelValues("build").Inc()
	case build.EventTargetBuildEnd:
		m.inFlight.Dec()
		m.builds.WithLabelValues(string(ev.Result.Status), strconv.FormatBool(ev.Cached)).Inc()
		// Overlapping builds of one target end in start order.
		if starts := m.starts[ev.Target]; len(starts) > 0 {
			m.duration.Observe(ev.Timestamp.Sub(starts[0]).Seconds())
			if len(starts) == 1 {
				delete(m.starts, ev.Target)
			} else {
				m.starts[ev.Target] = starts[1:]
			}
		}
	case build.EventTargetResetExecute:
		m.executions.WithLabelValues("reset").Inc()
	case build.EventTargetResetEnd:
		m.resets.WithLabelValues(string(ev.Result.Status)).Inc()
	}
}

// Registry returns the registry holding m's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving m in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
