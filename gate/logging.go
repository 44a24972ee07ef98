package gate

import (
	"time"
)

// LoggingGuard records every interaction attempt and stamps the context with
// a start time for downstream latency measurement. Purely observational; it
// never returns Stop, so it must run at the lowest priority to see every
// attempt, including ones later guards reject.
type LoggingGuard struct{}

var _ Guard = (*LoggingGuard)(nil)

func (g *LoggingGuard) Name() string { return "logging" }

func (g *LoggingGuard) Evaluate(c *Context) Outcome {
	c.StartedAt = time.Now()
	c.Logger.Info("interaction received",
		"channel", c.Event.ChannelID,
		"kind", c.Event.Kind)
	return Continue
}
