// Package gate implements the ordered, short-circuiting guard pipeline that
// every inbound interaction must pass before any command logic runs.
//
// Guards are registered with an integer priority; lower priorities run first,
// ties break by registration order. The first guard to return Stop ends the
// run and the interaction is rejected. Ordering is load-bearing: logging runs
// first so every attempt is recorded, permission runs last so it only sees
// validated, rate-limited traffic.
package gate

import (
	"context"
	"log/slog"
	"sort"
)

type Outcome int

const (
	Continue Outcome = iota
	Stop
)

// Guard is one composable unit in the pipeline. Evaluate may read and write
// the shared per-interaction Context and may reply to the actor before
// returning Stop; it must not have other side effects on the event.
type Guard interface {
	Name() string
	Evaluate(c *Context) Outcome
}

// Standard priorities for the built-in guards.
const (
	PriorityLogging    = 10
	PriorityValidation = 20
	PriorityRateLimit  = 30
	PriorityPermission = 40
)

type registeredGuard struct {
	guard    Guard
	priority int
	seq      int
}

type Pipeline struct {
	logger  *slog.Logger
	replier Replier
	guards  []registeredGuard
}

func NewPipeline(logger *slog.Logger, replier Replier) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if replier == nil {
		replier = &SlogReplier{Logger: logger}
	}
	return &Pipeline{
		logger:  logger,
		replier: replier,
	}
}

// Register adds a guard at the given priority. Not safe for concurrent use
// with Run; register everything at startup.
func (p *Pipeline) Register(g Guard, priority int) {
	p.guards = append(p.guards, registeredGuard{
		guard:    g,
		priority: priority,
		seq:      len(p.guards),
	})
	sort.SliceStable(p.guards, func(i, j int) bool {
		if p.guards[i].priority != p.guards[j].priority {
			return p.guards[i].priority < p.guards[j].priority
		}
		return p.guards[i].seq < p.guards[j].seq
	})
}

// Run evaluates all guards against one interaction and reports whether
// downstream command logic may proceed. A fresh Context is built per call and
// discarded when Run returns.
func (p *Pipeline) Run(ctx context.Context, ev InteractionEvent) bool {
	c := &Context{
		Ctx: ctx,
		Logger: p.logger.With(
			"actor", ev.ActorID,
			"command", ev.CommandName,
			"community", ev.CommunityID),
		Event:    ev,
		pipeline: p,
	}
	for _, rg := range p.guards {
		out := p.evaluate(rg, c)
		guardEvalCount.WithLabelValues(rg.guard.Name()).Inc()
		if out == Stop {
			interactionsBlocked.WithLabelValues(rg.guard.Name()).Inc()
			return false
		}
	}
	interactionsAdmitted.Inc()
	return true
}

// evaluate runs one guard with panic isolation: a panicking guard degrades
// that single interaction to a rejection, never the whole dispatcher.
func (p *Pipeline) evaluate(rg registeredGuard, c *Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error("guard execution exception", "guard", rg.guard.Name(), "err", r)
			guardPanicCount.WithLabelValues(rg.guard.Name()).Inc()
			c.Reply("something went wrong handling that command, please try again")
			out = Stop
		}
	}()
	return rg.guard.Evaluate(c)
}
