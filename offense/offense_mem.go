package offense

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps all enforcement state in process memory. Mirrors GormStore
// semantics; used in tests and throwaway deployments.
type MemStore struct {
	mu        sync.RWMutex
	offenders map[string]*OffenderRecord
	bans      []*BanRecord
	whitelist map[string]*WhitelistEntry
	config    *EnforcementConfig
	nextID    uint64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		offenders: make(map[string]*OffenderRecord),
		whitelist: make(map[string]*WhitelistEntry),
		nextID:    1,
	}
}

func offenderKey(actorID, communityID string) string {
	return actorID + "/" + communityID
}

func (s *MemStore) GetOffender(ctx context.Context, actorID, communityID string) (*OffenderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.offenders[offenderKey(actorID, communityID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStore) UpsertOffender(ctx context.Context, rec *OffenderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offenderKey(rec.ActorID, rec.CommunityID)
	now := time.Now()
	existing, ok := s.offenders[key]
	if !ok {
		cp := *rec
		cp.ID = s.nextID
		s.nextID++
		cp.CreatedAt = now
		cp.UpdatedAt = now
		s.offenders[key] = &cp
		rec.ID = cp.ID
		return nil
	}
	existing.OffenseCount = rec.OffenseCount
	existing.LastOffenseAt = rec.LastOffenseAt
	existing.IsBanned = rec.IsBanned
	existing.UpdatedAt = now
	rec.ID = existing.ID
	return nil
}

func (s *MemStore) ResetOffender(ctx context.Context, actorID, communityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.offenders[offenderKey(actorID, communityID)]; ok {
		rec.OffenseCount = 0
		rec.IsBanned = false
		rec.UpdatedAt = time.Now()
	}
	s.liftBanLocked(actorID, communityID)
	return nil
}

func (s *MemStore) ListOffenders(ctx context.Context, communityID string) ([]OffenderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OffenderRecord
	for _, rec := range s.offenders {
		if communityID == "" || rec.CommunityID == communityID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemStore) GetConfig(ctx context.Context) (EnforcementConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return DefaultConfig(), nil
	}
	return *s.config, nil
}

func (s *MemStore) SetConfig(ctx context.Context, cfg EnforcementConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.ID = 1
	cfg.UpdatedAt = time.Now()
	s.config = &cfg
	return nil
}

func (s *MemStore) IsWhitelisted(ctx context.Context, actorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[actorID]
	return ok, nil
}

func (s *MemStore) AddWhitelist(ctx context.Context, actorID, addedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.whitelist[actorID]; ok {
		return nil
	}
	s.whitelist[actorID] = &WhitelistEntry{
		ID:        s.nextID,
		ActorID:   actorID,
		AddedBy:   addedBy,
		CreatedAt: time.Now(),
	}
	s.nextID++
	return nil
}

func (s *MemStore) RemoveWhitelist(ctx context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, actorID)
	return nil
}

func (s *MemStore) ListWhitelist(ctx context.Context) ([]WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WhitelistEntry
	for _, e := range s.whitelist {
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemStore) GetActiveBan(ctx context.Context, actorID, communityID string) (*BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.bans) - 1; i >= 0; i-- {
		b := s.bans[i]
		if b.IsActive && b.ActorID == actorID && b.CommunityID == communityID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateBan(ctx context.Context, rec *BanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = s.nextID
	s.nextID++
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.bans = append(s.bans, &cp)
	rec.ID = cp.ID
	return nil
}

func (s *MemStore) LiftBan(ctx context.Context, actorID, communityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liftBanLocked(actorID, communityID)
	return nil
}

func (s *MemStore) liftBanLocked(actorID, communityID string) {
	now := time.Now()
	for _, b := range s.bans {
		if b.IsActive && b.ActorID == actorID && b.CommunityID == communityID {
			b.IsActive = false
			b.UpdatedAt = now
		}
	}
}

func (s *MemStore) ListBans(ctx context.Context, communityID string) ([]BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []BanRecord
	for _, b := range s.bans {
		if communityID == "" || b.CommunityID == communityID {
			out = append(out, *b)
		}
	}
	return out, nil
}
