// Package enforce implements the message-triggered moderation automaton: a
// per-(actor, community) state machine over the offense store that escalates
// detected violations from warnings to temporary or permanent bans.
//
// The violation signal itself comes from an external classifier; this package
// only decides and records consequences. It is fully independent of the
// interaction gate (different event type, different trigger).
package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wardenbot/warden/offense"
)

// MessageEvent is a normalized free-text channel message, as delivered by
// the dispatcher.
type MessageEvent struct {
	ActorID     string `json:"actor_id"`
	CommunityID string `json:"community_id"`
	ChannelID   string `json:"channel_id,omitempty"`
	Text        string `json:"text"`
	IsBotAuthor bool   `json:"is_bot_author,omitempty"`
}

type Action string

const (
	ActionNone       Action = "none"
	ActionWarned     Action = "warned"
	ActionSanctioned Action = "sanctioned"
)

// Decision reports what the automaton did for one message.
type Decision struct {
	Action       Action             `json:"action"`
	OffenseCount int                `json:"offense_count,omitempty"`
	MaxOffenses  int                `json:"max_offenses,omitempty"`
	Ban          *offense.BanRecord `json:"ban,omitempty"`
}

// Sanctioner applies the platform-level enforcement action (removal/ban).
// Called only after the offense store writes have succeeded; the recorded
// decision is durable and idempotent to re-apply, so failures are retried
// independently.
type Sanctioner interface {
	ApplySanction(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error
}

// Notifier delivers user-facing enforcement notices. Best effort.
type Notifier interface {
	Warn(ctx context.Context, ev MessageEvent, count, max int) error
	Sanctioned(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error
}

type Automaton struct {
	Logger    *slog.Logger
	Store     offense.Store
	Sanctions Sanctioner
	Notices   Notifier

	// serializes the read-modify-write cycle per (actor, community) so two
	// rapid messages from one actor cannot lose an offense increment
	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewAutomaton(logger *slog.Logger, store offense.Store, sanctions Sanctioner, notices Notifier) *Automaton {
	if logger == nil {
		logger = slog.Default()
	}
	if sanctions == nil {
		sanctions = &SlogSanctioner{Logger: logger}
	}
	if notices == nil {
		notices = &SlogNotifier{Logger: logger}
	}
	return &Automaton{
		Logger:    logger,
		Store:     store,
		Sanctions: sanctions,
		Notices:   notices,
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (a *Automaton) lockFor(actorID, communityID string) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(actorID+"/"+communityID, &sync.Mutex{})
	return mu
}

// ProcessMessage evaluates one message against the enforcement state machine
// and applies any resulting consequence. Store failures always degrade to
// ActionNone: a backing-store outage never sanctions, and never clears state.
func (a *Automaton) ProcessMessage(ctx context.Context, ev MessageEvent, isViolation bool) (dec Decision, err error) {
	// like an HTTP server, recover any panics at the event boundary
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("enforcement execution exception", "err", r, "actor", ev.ActorID, "community", ev.CommunityID)
			dec = Decision{Action: ActionNone}
			err = fmt.Errorf("panic during message enforcement: %v", r)
		}
	}()

	logger := a.Logger.With("actor", ev.ActorID, "community", ev.CommunityID)
	messagesProcessed.Inc()

	cfg, err := a.Store.GetConfig(ctx)
	if err != nil {
		storeErrorCount.Inc()
		logger.Error("failed to read enforcement config", "err", err)
		return Decision{Action: ActionNone}, fmt.Errorf("reading enforcement config: %w", err)
	}
	if !cfg.Enabled {
		return Decision{Action: ActionNone}, nil
	}

	// the bot never sanctions itself
	if ev.IsBotAuthor {
		return Decision{Action: ActionNone}, nil
	}

	if cfg.WhitelistEnabled {
		wl, err := a.Store.IsWhitelisted(ctx, ev.ActorID)
		if err != nil {
			storeErrorCount.Inc()
			logger.Error("whitelist lookup failed", "err", err)
			return Decision{Action: ActionNone}, fmt.Errorf("whitelist lookup: %w", err)
		}
		if wl {
			return Decision{Action: ActionNone}, nil
		}
	}

	mu := a.lockFor(ev.ActorID, ev.CommunityID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := a.Store.GetOffender(ctx, ev.ActorID, ev.CommunityID)
	if err != nil {
		storeErrorCount.Inc()
		logger.Error("offender lookup failed", "err", err)
		return Decision{Action: ActionNone}, fmt.Errorf("offender lookup: %w", err)
	}

	now := time.Now()

	if rec != nil && rec.IsBanned {
		ban, err := a.Store.GetActiveBan(ctx, ev.ActorID, ev.CommunityID)
		if err != nil {
			storeErrorCount.Inc()
			logger.Error("ban lookup failed", "err", err)
			return Decision{Action: ActionNone}, fmt.Errorf("ban lookup: %w", err)
		}
		if ban != nil && !ban.Expired(now) {
			// sanction already in force, nothing new to do
			return Decision{Action: ActionNone}, nil
		}
		// read-triggered expiry: transition back to clean before evaluating
		// this message. The offense count stays as historical record.
		if err := a.Store.LiftBan(ctx, ev.ActorID, ev.CommunityID); err != nil {
			storeErrorCount.Inc()
			logger.Error("failed to lift expired ban", "err", err)
			return Decision{Action: ActionNone}, fmt.Errorf("lifting expired ban: %w", err)
		}
		rec.IsBanned = false
		if err := a.Store.UpsertOffender(ctx, rec); err != nil {
			storeErrorCount.Inc()
			logger.Error("failed to clear ban flag", "err", err)
			return Decision{Action: ActionNone}, fmt.Errorf("clearing ban flag: %w", err)
		}
		banExpiryCount.Inc()
		logger.Info("expired ban lifted on read")
	}

	if !isViolation {
		return Decision{Action: ActionNone}, nil
	}

	if rec == nil {
		rec = &offense.OffenderRecord{
			ActorID:     ev.ActorID,
			CommunityID: ev.CommunityID,
		}
	}
	rec.OffenseCount++
	rec.LastOffenseAt = now

	// threshold is inclusive: reaching max_offenses sanctions on that exact
	// violation
	if rec.OffenseCount < cfg.MaxOffenses {
		if err := a.Store.UpsertOffender(ctx, rec); err != nil {
			storeErrorCount.Inc()
			logger.Error("failed to persist offense", "err", err)
			return Decision{Action: ActionNone}, fmt.Errorf("persisting offense: %w", err)
		}
		warningCount.Inc()
		logger.Info("violation warning issued", "count", rec.OffenseCount, "max", cfg.MaxOffenses)
		if err := a.Notices.Warn(ctx, ev, rec.OffenseCount, cfg.MaxOffenses); err != nil {
			logger.Error("failed to deliver warning", "err", err)
		}
		return Decision{
			Action:       ActionWarned,
			OffenseCount: rec.OffenseCount,
			MaxOffenses:  cfg.MaxOffenses,
		}, nil
	}

	rec.IsBanned = true
	if err := a.Store.UpsertOffender(ctx, rec); err != nil {
		storeErrorCount.Inc()
		logger.Error("failed to persist sanction state", "err", err)
		return Decision{Action: ActionNone}, fmt.Errorf("persisting sanction state: %w", err)
	}

	ban := &offense.BanRecord{
		ActorID:     ev.ActorID,
		CommunityID: ev.CommunityID,
		Reason:      fmt.Sprintf("offense threshold reached (%d violations)", rec.OffenseCount),
		IssuedBy:    "system",
		IsActive:    true,
	}
	// duration 0 means permanent, not zero-length
	if cfg.BanDurationHours > 0 {
		exp := now.Add(time.Duration(cfg.BanDurationHours) * time.Hour)
		ban.ExpiresAt = &exp
	}
	if err := a.Store.CreateBan(ctx, ban); err != nil {
		storeErrorCount.Inc()
		// the offender row says banned but no ban row exists; the next read
		// observes no active ban and lazily transitions back to clean
		logger.Error("failed to create ban record", "err", err)
		return Decision{Action: ActionNone}, fmt.Errorf("creating ban record: %w", err)
	}

	sanctionCount.Inc()
	logger.Info("sanction issued", "count", rec.OffenseCount, "permanent", ban.ExpiresAt == nil)

	// decision state is durable now; the platform action is applied after,
	// and retried independently if it fails
	a.applySanction(ev, ban, logger)

	if err := a.Notices.Sanctioned(ctx, ev, ban); err != nil {
		logger.Error("failed to deliver sanction notice", "err", err)
	}

	return Decision{
		Action:       ActionSanctioned,
		OffenseCount: rec.OffenseCount,
		MaxOffenses:  cfg.MaxOffenses,
		Ban:          ban,
	}, nil
}

const (
	sanctionAttempts = 3
	sanctionRetryGap = 30 * time.Second
)

// applySanction performs the platform-level removal. The first attempt is
// synchronous; on failure the remaining attempts run in the background, since
// the durable decision is idempotent to re-apply.
func (a *Automaton) applySanction(ev MessageEvent, ban *offense.BanRecord, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := a.Sanctions.ApplySanction(ctx, ev, ban)
	if err == nil {
		return
	}
	sanctionApplyErrors.Inc()
	logger.Error("platform sanction failed, retrying in background", "err", err)

	go func() {
		for i := 1; i < sanctionAttempts; i++ {
			time.Sleep(sanctionRetryGap)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := a.Sanctions.ApplySanction(ctx, ev, ban)
			cancel()
			if err == nil {
				return
			}
			sanctionApplyErrors.Inc()
			logger.Error("platform sanction retry failed", "attempt", i+1, "err", err)
		}
	}()
}
