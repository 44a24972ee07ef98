package capstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemCapabilityStore holds grants and roles in process memory. Used in tests
// and in deployments without a backing capability service.
type MemCapabilityStore struct {
	mu     sync.RWMutex
	grants map[string]map[string]bool
	roles  map[string][]string
}

var _ CapabilityStore = (*MemCapabilityStore)(nil)

func NewMemCapabilityStore() *MemCapabilityStore {
	return &MemCapabilityStore{
		grants: make(map[string]map[string]bool),
		roles:  make(map[string][]string),
	}
}

func (s *MemCapabilityStore) Grant(actorID string, tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[actorID]
	if !ok {
		g = make(map[string]bool)
		s.grants[actorID] = g
	}
	for _, t := range tokens {
		g[t] = true
	}
}

func (s *MemCapabilityStore) Revoke(actorID string, tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[actorID]
	if !ok {
		return
	}
	for _, t := range tokens {
		delete(g, t)
	}
}

func (s *MemCapabilityStore) SetRoles(actorID string, roles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[actorID] = roles
}

type actorGrants struct {
	Capabilities []string `json:"capabilities"`
	Roles        []string `json:"roles"`
}

// LoadFromFileJSON loads grants from a JSON object mapping actor id to
// capabilities and roles.
func (s *MemCapabilityStore) LoadFromFileJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var grants map[string]actorGrants
	if err := json.Unmarshal(raw, &grants); err != nil {
		return fmt.Errorf("parsing grants file %s: %w", path, err)
	}
	for actor, g := range grants {
		s.Grant(actor, g.Capabilities...)
		if len(g.Roles) > 0 {
			s.SetRoles(actor, g.Roles)
		}
	}
	return nil
}

func (s *MemCapabilityStore) HasCapability(ctx context.Context, actorID, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[actorID][token], nil
}

func (s *MemCapabilityStore) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.roles[actorID]))
	copy(out, s.roles[actorID])
	return out, nil
}
