package offense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists enforcement state via gorm (sqlite or postgres; see
// util/cliutil.SetupDatabase).
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&OffenderRecord{}, &BanRecord{}, &WhitelistEntry{}, &EnforcementConfig{}); err != nil {
		return nil, fmt.Errorf("migrating offense tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) GetOffender(ctx context.Context, actorID, communityID string) (*OffenderRecord, error) {
	var rec OffenderRecord
	err := s.db.WithContext(ctx).
		Where("actor_id = ? AND community_id = ?", actorID, communityID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) UpsertOffender(ctx context.Context, rec *OffenderRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "actor_id"}, {Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"offense_count", "last_offense_at", "is_banned", "updated_at",
		}),
	}).Create(rec).Error
}

func (s *GormStore) ResetOffender(ctx context.Context, actorID, communityID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&OffenderRecord{}).
			Where("actor_id = ? AND community_id = ?", actorID, communityID).
			Updates(map[string]any{"offense_count": 0, "is_banned": false}).Error; err != nil {
			return err
		}
		return tx.Model(&BanRecord{}).
			Where("actor_id = ? AND community_id = ? AND is_active = ?", actorID, communityID, true).
			Update("is_active", false).Error
	})
}

func (s *GormStore) ListOffenders(ctx context.Context, communityID string) ([]OffenderRecord, error) {
	var out []OffenderRecord
	q := s.db.WithContext(ctx)
	if communityID != "" {
		q = q.Where("community_id = ?", communityID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) GetConfig(ctx context.Context) (EnforcementConfig, error) {
	var cfg EnforcementConfig
	err := s.db.WithContext(ctx).First(&cfg, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return EnforcementConfig{}, err
	}
	return cfg, nil
}

func (s *GormStore) SetConfig(ctx context.Context, cfg EnforcementConfig) error {
	cfg.ID = 1
	cfg.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "max_offenses", "ban_duration_hours", "whitelist_enabled", "updated_at",
		}),
	}).Create(&cfg).Error
}

func (s *GormStore) IsWhitelisted(ctx context.Context, actorID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&WhitelistEntry{}).
		Where("actor_id = ?", actorID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) AddWhitelist(ctx context.Context, actorID, addedBy string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		DoNothing: true,
	}).Create(&WhitelistEntry{ActorID: actorID, AddedBy: addedBy}).Error
}

func (s *GormStore) RemoveWhitelist(ctx context.Context, actorID string) error {
	return s.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Delete(&WhitelistEntry{}).Error
}

func (s *GormStore) ListWhitelist(ctx context.Context) ([]WhitelistEntry, error) {
	var out []WhitelistEntry
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) GetActiveBan(ctx context.Context, actorID, communityID string) (*BanRecord, error) {
	var rec BanRecord
	err := s.db.WithContext(ctx).
		Where("actor_id = ? AND community_id = ? AND is_active = ?", actorID, communityID, true).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) CreateBan(ctx context.Context, rec *BanRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) LiftBan(ctx context.Context, actorID, communityID string) error {
	return s.db.WithContext(ctx).Model(&BanRecord{}).
		Where("actor_id = ? AND community_id = ? AND is_active = ?", actorID, communityID, true).
		Update("is_active", false).Error
}

func (s *GormStore) ListBans(ctx context.Context, communityID string) ([]BanRecord, error) {
	var out []BanRecord
	q := s.db.WithContext(ctx)
	if communityID != "" {
		q = q.Where("community_id = ?", communityID)
	}
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
