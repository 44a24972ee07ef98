package enforce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardenbot/warden/offense"
)

// SlogSanctioner logs sanctions instead of applying them. Default when no
// platform transport is configured.
type SlogSanctioner struct {
	Logger *slog.Logger
}

var _ Sanctioner = (*SlogSanctioner)(nil)

func (s *SlogSanctioner) ApplySanction(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error {
	s.Logger.Info("platform sanction (log only)",
		"actor", ban.ActorID,
		"community", ban.CommunityID,
		"permanent", ban.ExpiresAt == nil)
	return nil
}

// SlogNotifier logs enforcement notices instead of delivering them.
type SlogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = (*SlogNotifier)(nil)

func (n *SlogNotifier) Warn(ctx context.Context, ev MessageEvent, count, max int) error {
	n.Logger.Info("enforcement warning (log only)",
		"actor", ev.ActorID,
		"text", fmt.Sprintf("warning %d of %d: further violations will get you removed", count, max))
	return nil
}

func (n *SlogNotifier) Sanctioned(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error {
	n.Logger.Info("enforcement sanction notice (log only)",
		"actor", ev.ActorID,
		"reason", ban.Reason)
	return nil
}
