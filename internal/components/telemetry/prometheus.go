package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusAPI forwards every report to an inner API and additionally
// exposes them as prometheus metrics, so broken components show up on
// dashboards and not only in logs.
type PrometheusAPI struct {
	inner    API
	broken   *prometheus.CounterVec
	warnings *prometheus.CounterVec
	counts   *prometheus.GaugeVec
}

// NewPrometheusAPI registers its collectors on reg, pass prometheus.DefaultRegisterer
// to have them served by promhttp.Handler().
func NewPrometheusAPI(inner API, reg prometheus.Registerer) (PrometheusAPI, error) {
	p := PrometheusAPI{
		inner: inner,
		broken: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewise_broken_reports_total",
				Help: "Total number of broken component reports.",
			},
			[]string{"id"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewise_warning_reports_total",
				Help: "Total number of warning reports.",
			},
			[]string{"id"},
		),
		counts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewise_count",
				Help: "Latest reported count of an event.",
			},
			[]string{"id"},
		),
	}
	for _, c := range []prometheus.Collector{p.broken, p.warnings, p.counts} {
		err := reg.Register(c)
		if err != nil {
			return PrometheusAPI{}, err
		}
	}
	return p, nil
}

func (p PrometheusAPI) ReportBroken(id string, params ...any) {
	p.broken.WithLabelValues(id).Inc()
	p.inner.ReportBroken(id, params...)
}

func (p PrometheusAPI) ReportWarning(id string, params ...any) {
	p.warnings.WithLabelValues(id).Inc()
	p.inner.ReportWarning(id, params...)
}

func (p PrometheusAPI) ReportDebug(msg string, params ...any) {
	p.inner.ReportDebug(msg, params...)
}

func (p PrometheusAPI) ReportCount(id string, count int64) {
	p.counts.WithLabelValues(id).Set(float64(count))
	p.inner.ReportCount(id, count)
}
