// Copyright 2025 James Ross
package obs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/incontrol/trust-kernel/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kernel's Prometheus collectors. Nothing touches the
// global default registry: a caller constructs one Metrics value and
// registers it against a Registry it owns, so embedding the kernel twice
// in one process never panics on duplicate registration.
type Metrics struct {
	AuditEntries      prometheus.Counter
	PolicyEvaluations *prometheus.CounterVec
	PolicyDenials     prometheus.Counter
	PluginsLoaded     prometheus.Gauge
	PluginFaults      prometheus.Counter
	MediatorDenials   *prometheus.CounterVec
}

// NewMetrics constructs the kernel's collector set. Call Register to attach
// it to a prometheus.Registry before scraping.
func NewMetrics() *Metrics {
	return &Metrics{
		AuditEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_audit_entries_total",
			Help: "Total number of audit log entries appended",
		}),
		PolicyEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernel_policy_evaluations_total",
			Help: "Total number of policy evaluations by decision",
		}, []string{"decision"}),
		PolicyDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_policy_denials_total",
			Help: "Total number of policy evaluations that resulted in Deny",
		}),
		PluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_plugins_loaded",
			Help: "Number of plugins currently loaded",
		}),
		PluginFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_plugin_faults_total",
			Help: "Total number of plugins that transitioned to Faulted",
		}),
		MediatorDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernel_mediator_denials_total",
			Help: "Total number of mediator resource accesses denied by resource type",
		}, []string{"resource"}),
	}
}

// Register attaches every collector to reg. Safe to call once per Metrics
// instance; calling it twice on the same registry returns an error from reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.AuditEntries, m.PolicyEvaluations, m.PolicyDenials,
		m.PluginsLoaded, m.PluginFaults, m.MediatorDenials,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// StartHTTPServer exposes /metrics against reg plus /healthz and /readyz.
func StartHTTPServer(cfg *config.Config, reg *prometheus.Registry, readiness func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if readiness == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		if err := readiness(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
