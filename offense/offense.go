// Package offense holds the durable enforcement state consulted and mutated
// by the moderation automaton: per-(actor, community) offense counters, ban
// records, whitelist entries, and the singleton enforcement configuration.
//
// The same contract backs the external administrative surface (config
// updates, offender resets, early ban lifts, whitelist management).
package offense

import (
	"context"
	"time"
)

// OffenderRecord tracks violations for one actor within one community. Rows
// are never deleted; a reset zeroes the counter and clears the ban flag but
// keeps the row as history.
type OffenderRecord struct {
	ID            uint64 `gorm:"primaryKey"`
	ActorID       string `gorm:"uniqueIndex:idx_offender_actor_community;not null"`
	CommunityID   string `gorm:"uniqueIndex:idx_offender_actor_community;not null"`
	OffenseCount  int    `gorm:"not null"`
	LastOffenseAt time.Time
	IsBanned      bool `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BanRecord is one sanction issued against an actor in a community. A nil
// ExpiresAt means permanent. IsActive in storage is not authoritative: a row
// whose ExpiresAt is in the past must be treated as expired by readers, and
// lazily corrected (there is no background sweeper).
type BanRecord struct {
	ID          uint64 `gorm:"primaryKey"`
	ActorID     string `gorm:"index:idx_ban_actor_community;not null"`
	CommunityID string `gorm:"index:idx_ban_actor_community;not null"`
	Reason      string `gorm:"not null"`
	IssuedBy    string `gorm:"not null"`
	ExpiresAt   *time.Time
	IsActive    bool `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the ban's expiry is in the past. Permanent bans
// never expire.
func (b *BanRecord) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// WhitelistEntry exempts an actor from enforcement (while whitelisting is
// enabled in config) in every community.
type WhitelistEntry struct {
	ID        uint64 `gorm:"primaryKey"`
	ActorID   string `gorm:"uniqueIndex;not null"`
	AddedBy   string
	CreatedAt time.Time
}

// EnforcementConfig is the singleton per-deployment knob set, read on every
// message evaluation and mutated only through the administrative surface.
// BanDurationHours of 0 means permanent, not zero-length.
type EnforcementConfig struct {
	ID               uint64 `gorm:"primaryKey" json:"-"`
	Enabled          bool   `json:"enabled"`
	MaxOffenses      int    `json:"max_offenses"`
	BanDurationHours int    `json:"ban_duration_hours"`
	WhitelistEnabled bool   `json:"whitelist_enabled"`
	UpdatedAt        time.Time
}

func DefaultConfig() EnforcementConfig {
	return EnforcementConfig{
		Enabled:          false,
		MaxOffenses:      3,
		BanDurationHours: 24,
		WhitelistEnabled: true,
	}
}

type Store interface {
	// GetOffender returns nil (no error) when no record exists for the key.
	GetOffender(ctx context.Context, actorID, communityID string) (*OffenderRecord, error)
	UpsertOffender(ctx context.Context, rec *OffenderRecord) error
	// ResetOffender zeroes the counter, clears the ban flag, and deactivates
	// any active bans for the key. Idempotent; a no-op for unknown keys.
	ResetOffender(ctx context.Context, actorID, communityID string) error
	ListOffenders(ctx context.Context, communityID string) ([]OffenderRecord, error)

	GetConfig(ctx context.Context) (EnforcementConfig, error)
	SetConfig(ctx context.Context, cfg EnforcementConfig) error

	IsWhitelisted(ctx context.Context, actorID string) (bool, error)
	AddWhitelist(ctx context.Context, actorID, addedBy string) error
	RemoveWhitelist(ctx context.Context, actorID string) error
	ListWhitelist(ctx context.Context) ([]WhitelistEntry, error)

	// GetActiveBan returns the most recent ban row with IsActive=true for the
	// key, or nil. Callers must still check ExpiresAt.
	GetActiveBan(ctx context.Context, actorID, communityID string) (*BanRecord, error)
	CreateBan(ctx context.Context, rec *BanRecord) error
	// LiftBan deactivates all active ban rows for the key. Idempotent.
	LiftBan(ctx context.Context, actorID, communityID string) error
	ListBans(ctx context.Context, communityID string) ([]BanRecord, error)
}
