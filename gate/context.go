package gate

import (
	"context"
	"log/slog"
	"time"
)

// Context is the shared per-interaction state bag, exclusively owned by one
// Pipeline.Run invocation. Guards contribute typed fields progressively for
// later guards (and downstream command logic) to consume: the logging guard
// records StartedAt, validation resolves Command, permission resolves
// RequiredCaps and ActorRoles.
type Context struct {
	// Go context for timeouts on store lookups.
	Ctx context.Context
	// Logger with event fields pre-populated. Never nil inside a run.
	Logger *slog.Logger
	Event  InteractionEvent

	// Set by the logging guard; consumed for latency measurement downstream.
	StartedAt time.Time
	// Set by the validation guard.
	Command *Command
	// Set by the permission guard on success.
	RequiredCaps []string
	ActorRoles   []string

	pipeline *Pipeline
	replied  bool
}

// Reply sends a short text reply to the acting user. Best effort: failures
// are logged and do not affect the guard outcome. Guards use this to explain
// a rejection before returning Stop; only the first reply per interaction is
// delivered.
func (c *Context) Reply(text string) {
	if c.replied {
		return
	}
	c.replied = true
	if err := c.pipeline.replier.Reply(c.Ctx, c.Event, text); err != nil {
		c.Logger.Error("failed to deliver reply", "err", err)
	}
}
