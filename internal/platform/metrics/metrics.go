package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Contadores mínimos de negocio. No es una capa de observabilidad completa:
// solo lo que sirve para mirar el motor y el workflow en producción.
var (
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policy_evaluations_total",
		Help: "Evaluaciones del motor de políticas, por decisión.",
	}, []string{"decision"})

	AccessRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_requests_total",
		Help: "Transiciones del workflow de consentimiento, por acción.",
	}, []string{"action"})

	CacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policy_cache_ops_total",
		Help: "Operaciones del cache de políticas (hit, miss, invalidate).",
	}, []string{"op"})
)

// Handler expone /metrics en formato Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}
