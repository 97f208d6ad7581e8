package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts transport activity. A nil *Metrics records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	unauthorized prometheus.Counter
}

// NewMetrics creates the transport counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gresst_client_requests_total",
			Help: "HTTP attempts issued by the API client, by method and status code.",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gresst_client_refresh_total",
			Help: "Session refresh attempts, by outcome.",
		}, []string{"outcome"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gresst_client_unauthorized_total",
			Help: "Requests that ended unauthorized after refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes, m.unauthorized)
	}
	return m
}

func (m *Metrics) observeAttempt(method string, status int) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeUnauthorized() {
	if m == nil {
		return
	}
	m.unauthorized.Inc()
}
