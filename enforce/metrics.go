package enforce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_messages_processed",
	Help: "Number of messages evaluated by the moderation automaton",
})

var warningCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_warnings_issued",
	Help: "Number of violation warnings issued",
})

var sanctionCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_sanctions_issued",
	Help: "Number of sanctions (bans) issued",
})

var banExpiryCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_bans_expired",
	Help: "Number of expired bans lifted lazily on read",
})

var storeErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_store_errors",
	Help: "Number of offense store failures (degraded to no action)",
})

var sanctionApplyErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enforce_sanction_apply_errors",
	Help: "Number of failed platform-level sanction attempts",
})
