// Package metrics exposes Prometheus metrics for the request executor.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Collector tracks executor activity. A nil *Collector is a valid no-op, so
// components can call it unconditionally.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	retries           prometheus.Counter
	failovers         prometheus.Counter
	leaderChanges     prometheus.Counter
	topologyRefreshes prometheus.Counter
	knownNodes        prometheus.Gauge
	leaderKnown       prometheus.Gauge

	server *http.Server
}

// NewCollector creates a metrics collector. When disabled it returns nil,
// which every recording method tolerates.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9135,
			Path:      "/metrics",
			Namespace: "ravendb",
		}
	}
	if !config.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		registry: registry,
	}

	ns := config.Namespace
	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "executor",
		Name:      "requests_total",
		Help:      "Requests dispatched, by method and outcome",
	}, []string{"method", "outcome"})

	c.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "executor",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request latency including retries",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	c.retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "executor",
		Name:      "retries_total",
		Help:      "Retries that consumed retry budget",
	})

	c.failovers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "executor",
		Name:      "failover_walks_total",
		Help:      "Dispatches that entered the failover walk",
	})

	c.leaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "cluster",
		Name:      "leader_changes_total",
		Help:      "Leader installs observed by the client",
	})

	c.topologyRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "cluster",
		Name:      "topology_refreshes_total",
		Help:      "Completed topology refresh tasks",
	})

	c.knownNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "cluster",
		Name:      "known_nodes",
		Help:      "Size of the current node list",
	})

	c.leaderKnown = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "cluster",
		Name:      "leader_known",
		Help:      "1 when a leader is currently installed",
	})

	collectors := []prometheus.Collector{
		c.requests, c.requestDuration, c.retries, c.failovers,
		c.leaderChanges, c.topologyRefreshes, c.knownNodes, c.leaderKnown,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// Start serves the metrics endpoint until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Registry exposes the private registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordRequest records one completed Execute call.
func (c *Collector) RecordRequest(method, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, outcome).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry records a retry that consumed budget.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// RecordFailoverWalk records a dispatch that entered the failover walk.
func (c *Collector) RecordFailoverWalk() {
	if c == nil {
		return
	}
	c.failovers.Inc()
}

// RecordLeaderChange records a leader install.
func (c *Collector) RecordLeaderChange() {
	if c == nil {
		return
	}
	c.leaderChanges.Inc()
}

// RecordTopologyRefresh records a completed refresh task.
func (c *Collector) RecordTopologyRefresh() {
	if c == nil {
		return
	}
	c.topologyRefreshes.Inc()
}

// SetKnownNodes updates the node-list size gauge.
func (c *Collector) SetKnownNodes(n int) {
	if c == nil {
		return
	}
	c.knownNodes.Set(float64(n))
}

// SetLeaderKnown updates the leader-known gauge.
func (c *Collector) SetLeaderKnown(known bool) {
	if c == nil {
		return
	}
	if known {
		c.leaderKnown.Set(1)
	} else {
		c.leaderKnown.Set(0)
	}
}
