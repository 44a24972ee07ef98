package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var guardEvalCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_guard_evaluations",
	Help: "Number of guard evaluations, by guard",
}, []string{"guard"})

var guardPanicCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_guard_panics",
	Help: "Number of guard evaluations which panicked",
}, []string{"guard"})

var interactionsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gate_interactions_admitted",
	Help: "Number of interactions which passed all guards",
})

var interactionsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_interactions_blocked",
	Help: "Number of interactions blocked, by the guard which stopped them",
}, []string{"guard"})

var rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_ratelimit_rejections",
	Help: "Number of rate limit rejections, by scope",
}, []string{"scope"})

var capabilityDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_capability_denials",
	Help: "Number of permission guard denials, by missing token",
}, []string{"token"})

var capabilityStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gate_capability_store_errors",
	Help: "Number of capability store failures (failed closed)",
})
