package engine

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records
// nothing, which keeps tests that don't care about metrics short.
type Metrics struct {
	dispatches     *prometheus.CounterVec
	pluginDuration *prometheus.HistogramVec
	pluginErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg (default registry if nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sca_dispatch_total",
			Help: "Authorisation updates processed, by type, status transition and outcome",
		}, []string{"type", "from", "to", "outcome"}),

		pluginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sca_plugin_call_duration_seconds",
			Help:    "Latency of calls into the bank plugin",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "call"}),

		pluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sca_plugin_errors_total",
			Help: "Errors reported by the bank plugin",
		}, []string{"type", "call", "code"}),
	}

	var err error
	if m.dispatches, err = register(reg, m.dispatches); err != nil {
		return nil, err
	}
	if m.pluginDuration, err = register(reg, m.pluginDuration); err != nil {
		return nil, err
	}
	if m.pluginErrors, err = register(reg, m.pluginErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the existing collector when one with the
// same description is already there.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return c, err
		}
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, nil
}

func (m *Metrics) observeDispatch(t domain.AuthorisationType, from, to domain.ScaStatus, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(t), string(from), string(to), outcome).Inc()
}

func (m *Metrics) observePlugin(t domain.AuthorisationType, call string, d time.Duration, pe *spi.Error) {
	if m == nil {
		return
	}
	m.pluginDuration.WithLabelValues(string(t), call).Observe(d.Seconds())
	if pe != nil {
		m.pluginErrors.WithLabelValues(string(t), call, pe.Code).Inc()
	}
}
