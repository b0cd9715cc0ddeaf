package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry agrupa los collectors del servicio. Cada instancia tiene su propio
// prometheus.Registry para que los tests puedan crear varios routers.
type Registry struct {
	reg *prometheus.Registry

	grantTransitions *prometheus.CounterVec
	accessDecisions  *prometheus.CounterVec
	expiredSwept     prometheus.Counter
	sideEffectErrors *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		grantTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_grant_transitions_total",
				Help: "Grant state transitions by resulting status",
			},
			[]string{"status"},
		),
		accessDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_decisions_total",
				Help: "Capability checks by scope, basis and outcome",
			},
			[]string{"scope", "basis", "outcome"},
		),
		expiredSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "access_grants_expired_swept_total",
				Help: "ACTIVE grants moved to EXPIRED by the sweeper",
			},
		),
		sideEffectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_side_effect_errors_total",
				Help: "Best-effort side effects (audit, notifications) that failed",
			},
			[]string{"kind"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	r.reg.MustRegister(
		r.grantTransitions,
		r.accessDecisions,
		r.expiredSwept,
		r.sideEffectErrors,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) GrantTransition(status string) {
	r.grantTransitions.WithLabelValues(status).Inc()
}

func (r *Registry) AccessDecision(scope, basis string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	r.accessDecisions.WithLabelValues(scope, basis, outcome).Inc()
}

func (r *Registry) GrantsExpired(n int) {
	if n > 0 {
		r.expiredSwept.Add(float64(n))
	}
}

func (r *Registry) SideEffectFailed(kind string) {
	r.sideEffectErrors.WithLabelValues(kind).Inc()
}

// Handler expone /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware mide latencia por patrón de ruta chi (no por path crudo, para no explotar cardinalidad).
func (r *Registry) Middleware(routePattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			route := routePattern(req)
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			r.httpDuration.WithLabelValues(req.Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
