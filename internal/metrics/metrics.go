// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "movingblock"

// Metrics holds the collectors of one engine. Every method is a no-op on a
// nil *Metrics.
type Metrics struct {
	allocations  *prometheus.CounterVec
	hardBrakes   prometheus.Counter
	arrivals     prometheus.Counter
	ticks        prometheus.Counter
	lockedCells  prometheus.Gauge
	activeTrains prometheus.Gauge
	tickDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New registers the simulation collectors on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Lock requests by result",
			},
			[]string{"result"},
		),
		hardBrakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hard_brakes_total",
			Help:      "Ticks in which a train was refused its locks",
		}),
		arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arrivals_total",
			Help:      "Trains removed at their target",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks executed",
		}),
		lockedCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_cells",
			Help:      "Cells locked at the end of the last tick",
		}),
		activeTrains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trains",
			Help:      "Trains on the grid at the end of the last tick",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent computing one tick",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}

	registry.MustRegister(
		m.allocations,
		m.hardBrakes,
		m.arrivals,
		m.ticks,
		m.lockedCells,
		m.activeTrains,
		m.tickDuration,
	)
	return m
}

func (m *Metrics) RecordAllocation(ok bool) {
	if m == nil {
		return
	}
	result := "granted"
	if !ok {
		result = "refused"
	}
	m.allocations.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHardBrake() {
	if m == nil {
		return
	}
	m.hardBrakes.Inc()
}

func (m *Metrics) RecordArrival() {
	if m == nil {
		return
	}
	m.arrivals.Inc()
}

// RecordTick closes a tick: it stores the end-of-tick occupancy and the time
// the tick took.
func (m *Metrics) RecordTick(d time.Duration, locked, active int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.lockedCells.Set(float64(locked))
	m.activeTrains.Set(float64(active))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
