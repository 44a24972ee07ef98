package capstore

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// CachedCapabilityStore decorates another CapabilityStore with a two-tier
// cache (local TinyLFU plus redis). Negative lookups are cached as well;
// the TTL bounds how long a revocation can lag.
type CachedCapabilityStore struct {
	Inner CapabilityStore
	Data  *cache.Cache
	TTL   time.Duration
}

var _ CapabilityStore = (*CachedCapabilityStore)(nil)

func NewCachedCapabilityStore(inner CapabilityStore, redisURL string, ttl time.Duration) (*CachedCapabilityStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, ttl),
	})
	return &CachedCapabilityStore{
		Inner: inner,
		Data:  data,
		TTL:   ttl,
	}, nil
}

func capCacheKey(actorID, token string) string {
	return "cap/" + actorID + "/" + token
}

func roleCacheKey(actorID string) string {
	return "roles/" + actorID
}

func (s *CachedCapabilityStore) HasCapability(ctx context.Context, actorID, token string) (bool, error) {
	var held bool
	err := s.Data.Get(ctx, capCacheKey(actorID, token), &held)
	if err == nil {
		return held, nil
	}
	if err != cache.ErrCacheMiss {
		return false, err
	}

	held, err = s.Inner.HasCapability(ctx, actorID, token)
	if err != nil {
		// store failures are never cached
		return false, err
	}
	if err := s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   capCacheKey(actorID, token),
		Value: held,
		TTL:   s.TTL,
	}); err != nil {
		return held, err
	}
	return held, nil
}

func (s *CachedCapabilityStore) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	var joined string
	err := s.Data.Get(ctx, roleCacheKey(actorID), &joined)
	if err == nil {
		if joined == "" {
			return []string{}, nil
		}
		return strings.Split(joined, ","), nil
	}
	if err != cache.ErrCacheMiss {
		return nil, err
	}

	roles, err := s.Inner.RolesOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   roleCacheKey(actorID),
		Value: strings.Join(roles, ","),
		TTL:   s.TTL,
	}); err != nil {
		return roles, err
	}
	return roles, nil
}

// Purge drops cached grants and roles for one actor and token. The admin
// surface calls this after changing grants so revocations take effect ahead
// of TTL expiry.
func (s *CachedCapabilityStore) Purge(ctx context.Context, actorID, token string) error {
	if err := s.Data.Delete(ctx, capCacheKey(actorID, token)); err != nil && err != cache.ErrCacheMiss {
		return err
	}
	if err := s.Data.Delete(ctx, roleCacheKey(actorID)); err != nil && err != cache.ErrCacheMiss {
		return err
	}
	return nil
}
