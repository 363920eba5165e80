package watch

import (
	"net/http"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/metrics"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves NOTIFY requests at the notify path and, when a metrics
// path and registry are given, Prometheus metrics.
func NewRouter(c *configuration.Server, registry *upnp.Registry, m *metrics.Metrics, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	var notify http.Handler = registry.Handler()
	if m != nil {
		notify = m.Middleware(registry.ServiceHeader)(notify)
	}
	r.Handle(c.NotifyPath, notify)

	if c.MetricsPath != "" && reg != nil {
		r.Handle(c.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	return r
}
