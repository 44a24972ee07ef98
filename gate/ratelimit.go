package gate

import (
	"time"

	"github.com/wardenbot/warden/ratelimit"
)

// RateLimitGuard enforces the per-actor and global sliding-window limits. A
// rejected interaction is dropped, not deferred; the actor must re-issue it.
type RateLimitGuard struct {
	Limiter *ratelimit.Limiter
}

var _ Guard = (*RateLimitGuard)(nil)

func NewRateLimitGuard(lim *ratelimit.Limiter) *RateLimitGuard {
	return &RateLimitGuard{Limiter: lim}
}

func (g *RateLimitGuard) Name() string { return "ratelimit" }

func (g *RateLimitGuard) Evaluate(c *Context) Outcome {
	v := g.Limiter.RecordAndCheck(c.Event.ActorID, time.Now())
	if v.Allowed {
		return Continue
	}
	rateLimitRejections.WithLabelValues(string(v.Scope)).Inc()
	switch v.Scope {
	case ratelimit.ScopeGlobal:
		c.Reply("the bot is handling too many requests right now, please try again shortly")
	default:
		c.Reply("you're sending commands too quickly, please slow down")
	}
	return Stop
}
