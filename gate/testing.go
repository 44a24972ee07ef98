package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/capstore"
	"github.com/wardenbot/warden/ratelimit"
)

// CaptureReplier collects replies instead of delivering them. Intentionally
// exported for use in other packages' tests.
type CaptureReplier struct {
	Replies []string
}

var _ Replier = (*CaptureReplier)(nil)

func (r *CaptureReplier) Reply(ctx context.Context, ev InteractionEvent, text string) error {
	r.Replies = append(r.Replies, text)
	return nil
}

func noopHandler(ctx context.Context, ev InteractionEvent) error { return nil }

// PipelineTestFixture wires the four standard guards against in-memory
// collaborators.
func PipelineTestFixture() (*Pipeline, *CaptureReplier, *Registry, *capstore.MemCapabilityStore, *ratelimit.Limiter) {
	reg := NewRegistry()
	reg.Register(&Command{Name: "ping", Category: "general", Handler: noopHandler})
	reg.Register(&Command{Name: "ban", Category: "moderation", Permissions: []string{"ban_members"}, Handler: noopHandler})
	reg.Register(&Command{Name: "shutdown", Category: "admin", Handler: noopHandler})
	reg.Register(&Command{Name: "broken", Category: "general"}) // no handler

	caps := capstore.NewMemCapabilityStore()
	lim := ratelimit.New(ratelimit.Config{
		Enabled:      true,
		UserLimit:    10,
		UserWindow:   60 * time.Second,
		GlobalLimit:  1000,
		GlobalWindow: 60 * time.Second,
	})

	replier := &CaptureReplier{}
	p := NewPipeline(slog.Default(), replier)
	p.Register(&LoggingGuard{}, PriorityLogging)
	p.Register(NewValidationGuard(reg), PriorityValidation)
	p.Register(NewRateLimitGuard(lim), PriorityRateLimit)
	p.Register(NewPermissionGuard(caps), PriorityPermission)
	return p, replier, reg, caps, lim
}
