// Package metrics provides Prometheus instrumentation for exchanges,
// discovery and inbound events.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. It implements transport.Observer.
type Metrics struct {
	States             *prometheus.CounterVec
	ConnectRetries     *prometheus.CounterVec
	SocketReplacements *prometheus.CounterVec
	Exchanges          *prometheus.CounterVec
	PlayersDiscovered  prometheus.Counter
	Notifies           *prometheus.CounterVec
}

var _ transport.Observer = (*Metrics)(nil)

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "knob"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		States: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_states_total",
				Help:      "Exchange state transitions",
			},
			[]string{"state"},
		),
		ConnectRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_retries_total",
				Help:      "Connect attempts that did not connect, by error class",
			},
			[]string{"class"},
		),
		SocketReplacements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "socket_replacements_total",
				Help:      "Sockets discarded and reallocated during an exchange",
			},
			[]string{"reason"},
		),
		Exchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Completed exchanges by method and result",
			},
			[]string{"method", "result"},
		),
		PlayersDiscovered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "players_discovered_total",
				Help:      "Discovery responses from players",
			},
		),
		Notifies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifies_total",
				Help:      "Inbound NOTIFY requests by service and response status",
			},
			[]string{"service", "status"},
		),
	}
}

func (m *Metrics) OnState(s transport.State) {
	m.States.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) OnRetry(class transport.ErrorClass, _ error) {
	m.ConnectRetries.WithLabelValues(class.String()).Inc()
}

func (m *Metrics) OnSocketReplaced(reason string) {
	m.SocketReplacements.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnDone(method string, err error) {
	m.Exchanges.WithLabelValues(method, result(err)).Inc()
}

func result(err error) string {
	var (
		fe *transport.FramingError
		ce *transport.ConnectError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, transport.ErrTimeout):
		return "timeout"
	case errors.As(err, &fe):
		return "framing"
	case errors.As(err, &ce):
		return "connect"
	}
	return "error"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts NOTIFY requests handled by next. serviceHeader names the
// request header carrying the service name.
func (m *Metrics) Middleware(serviceHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(&rec, r)

			service := r.Header.Get(serviceHeader)
			if service == "" {
				service = "unknown"
			}
			m.Notifies.WithLabelValues(service, strconv.Itoa(rec.status)).Inc()
		})
	}
}
