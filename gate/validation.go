package gate

// ValidationGuard is the single authority on whether an inbound event makes
// structural sense: a present actor, a supported interaction kind, a known
// command with an executable handler, and (inside communities only) the
// platform permission bits the command declares. It runs before the rate
// limiter, so malformed events are never counted against an actor's budget.
type ValidationGuard struct {
	Registry *Registry
	// Interaction kinds this deployment handles. Nil means commands only.
	SupportedKinds map[InteractionKind]bool
}

var _ Guard = (*ValidationGuard)(nil)

func NewValidationGuard(reg *Registry) *ValidationGuard {
	return &ValidationGuard{
		Registry:       reg,
		SupportedKinds: map[InteractionKind]bool{KindCommand: true},
	}
}

func (g *ValidationGuard) Name() string { return "validation" }

func (g *ValidationGuard) Evaluate(c *Context) Outcome {
	ev := &c.Event

	if ev.ActorID == "" {
		c.Logger.Warn("interaction missing actor")
		c.Reply("this interaction could not be processed: missing actor")
		return Stop
	}

	if !g.SupportedKinds[ev.Kind] {
		c.Reply("this interaction type is not supported here")
		return Stop
	}

	cmd := g.Registry.Get(ev.CommandName)
	if cmd == nil {
		c.Reply("unknown command: " + ev.CommandName)
		return Stop
	}
	if cmd.Handler == nil {
		c.Logger.Warn("command registered without handler")
		c.Reply("that command is not available right now")
		return Stop
	}

	// static permission bits only apply inside communities, not DMs
	if ev.InCommunity() && cmd.MemberPermissions != 0 {
		if ev.MemberPermissions&cmd.MemberPermissions != cmd.MemberPermissions {
			c.Reply("you don't have the required permissions in this community to use " + cmd.Name)
			return Stop
		}
	}

	c.Command = cmd
	return Continue
}
