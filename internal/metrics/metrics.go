// Package metrics exports the canonical counters for Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nozo-moto/tcpcount/internal/tracker"
)

const namespace = "tcpcount"

// Monitor records pipeline measurements into its own registry.
type Monitor struct {
	registry *prometheus.Registry

	active     prometheus.Gauge
	peak       prometheus.Gauge
	opened     prometheus.Counter
	closed     prometheus.Counter
	failures   prometheus.Counter
	violations prometheus.Counter
	duration   prometheus.Histogram
}

func New() *Monitor {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Monitor{
		registry: reg,
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently open TCP connections",
		}),
		peak: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_peak",
			Help:      "Highest number of concurrently open TCP connections since the last reset",
		}),
		opened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "TCP connections seen opening",
		}),
		closed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "TCP connections seen closing",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Poll ticks skipped because the socket table could not be read",
		}),
		violations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Counting inconsistencies detected and clamped",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent on one poll tick",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

func (m *Monitor) ObserveTick(s tracker.TickStats) {
	m.active.Set(float64(s.Global.Active))
	m.peak.Set(float64(s.Global.Max))
	m.opened.Add(float64(s.Opened))
	m.closed.Add(float64(s.Closed))
	m.duration.Observe(s.Duration.Seconds())
}

func (m *Monitor) SnapshotFailed() { m.failures.Inc() }

func (m *Monitor) InvariantViolated(n int) { m.violations.Add(float64(n)) }

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, addr string, log *zap.SugaredLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return m.serve(ctx, ln, log)
}

func (m *Monitor) serve(ctx context.Context, ln net.Listener, log *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Infof("serving metrics on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		log.Infof("metrics listener on %s closed", ln.Addr())
		return nil
	}
	return errors.Wrap(err, "metrics server failed")
}
