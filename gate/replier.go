package gate

import (
	"context"
	"log/slog"
)

// Replier delivers short text replies back to the acting user via the
// platform. Every rejected interaction produces exactly one reply.
type Replier interface {
	Reply(ctx context.Context, ev InteractionEvent, text string) error
}

// SlogReplier logs replies instead of delivering them. Default when no
// platform transport is configured.
type SlogReplier struct {
	Logger *slog.Logger
}

var _ Replier = (*SlogReplier)(nil)

func (r *SlogReplier) Reply(ctx context.Context, ev InteractionEvent, text string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("interaction reply", "actor", ev.ActorID, "command", ev.CommandName, "text", text)
	return nil
}
