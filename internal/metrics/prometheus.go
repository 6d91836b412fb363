// Package metrics instruments chain reads and transaction phases with
// Prometheus, in a dedicated registry so the defaults stay untouched.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stakedash/stakedash/internal/logging"
)

// Namespace prefixes every metric name.
const Namespace = "stakedash"

// Collector records read and transaction metrics.
type Collector struct {
	registry *prometheus.Registry

	reads        *prometheus.CounterVec
	readErrors   *prometheus.CounterVec
	readDuration *prometheus.HistogramVec
	txPhases     *prometheus.CounterVec
	connected    prometheus.Gauge
	lastRefresh  prometheus.Gauge
	uptime       prometheus.GaugeFunc

	startTime time.Time

	// running totals for Summary
	readCount    atomic.Uint64
	errorCount   atomic.Uint64
	readNanos    atomic.Int64
	confirmedTxs atomic.Uint64
	failedTxs    atomic.Uint64
}

// NewCollector creates a Collector with its own registry, including the
// Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg, startTime: time.Now()}

	c.reads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reads_total",
		Help:      "Contract view calls by query.",
	}, []string{"query"})

	c.readErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "read_errors_total",
		Help:      "Failed contract view calls by query.",
	}, []string{"query"})

	c.readDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "read_duration_seconds",
		Help:      "Contract view call latency by query.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"query"})

	c.txPhases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tx_phase_total",
		Help:      "Transaction phase transitions by action and phase.",
	}, []string{"action", "phase"})

	c.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "connected",
		Help:      "1 while the RPC endpoint is reachable.",
	})

	c.lastRefresh = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix time of the last successful snapshot.",
	})

	c.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "uptime_seconds",
		Help:      "Time since the client started in seconds.",
	}, func() float64 { return time.Since(c.startTime).Seconds() })

	reg.MustRegister(c.reads, c.readErrors, c.readDuration, c.txPhases, c.connected, c.lastRefresh, c.uptime)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRead records one view call.
func (c *Collector) ObserveRead(query string, d time.Duration, err error) {
	c.reads.WithLabelValues(query).Inc()
	c.readDuration.WithLabelValues(query).Observe(d.Seconds())
	c.readCount.Add(1)
	c.readNanos.Add(int64(d))
	if err != nil {
		c.readErrors.WithLabelValues(query).Inc()
		c.errorCount.Add(1)
	}
}

// ObservePhase records a transaction entering phase.
func (c *Collector) ObservePhase(action, phase string) {
	c.txPhases.WithLabelValues(action, phase).Inc()
	switch phase {
	case "confirmed":
		c.confirmedTxs.Add(1)
	case "failed":
		c.failedTxs.Add(1)
	}
}

// SetConnected sets the reachability gauge.
func (c *Collector) SetConnected(ok bool) {
	if ok {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}

// MarkRefreshed stamps the last successful snapshot time.
func (c *Collector) MarkRefreshed(at time.Time) {
	c.lastRefresh.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.Info("metrics endpoint listening", logging.Component("metrics"), "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
