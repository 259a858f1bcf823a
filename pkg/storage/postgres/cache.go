package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/observability"
)

const tokenCacheName = "token"

// CachedTokenStore wraps a TokenStore with a two-level read-through cache:
// an in-process expirable LRU, then Redis (optional), then the database.
// Token lookup sits on every authenticated request, so this is the hottest
// read path in the service.
//
// Only FindByHash is cached. Mutations pass through and invalidate, and the
// short TTL bounds how long a revocation can go unnoticed on other
// instances.
type CachedTokenStore struct {
	auth.TokenStore

	l1      *expirable.LRU[string, *auth.Token]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// CachedTokenStoreConfig configures the token cache
type CachedTokenStoreConfig struct {
	Size int
	TTL  time.Duration
	// Redis is optional; nil runs L1-only
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// NewCachedTokenStore wraps the given store with caching
func NewCachedTokenStore(store auth.TokenStore, cfg CachedTokenStoreConfig) *CachedTokenStore {
	if cfg.Size <= 0 {
		cfg.Size = 4096
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}

	return &CachedTokenStore{
		TokenStore: store,
		l1:         expirable.NewLRU[string, *auth.Token](cfg.Size, nil, cfg.TTL),
		redis:      cfg.Redis,
		ttl:        cfg.TTL,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// FindByHash returns the token, consulting the caches first
func (s *CachedTokenStore) FindByHash(ctx context.Context, hash string) (*auth.Token, error) {
	if token, ok := s.l1.Get(hash); ok {
		s.hit()
		return token, nil
	}

	if s.redis != nil {
		if token, err := s.redisGet(ctx, hash); err == nil && token != nil {
			s.hit()
			s.l1.Add(hash, token)
			return token, nil
		}
	}

	s.miss()

	token, err := s.TokenStore.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	s.l1.Add(hash, token)
	if s.redis != nil {
		s.redisSet(ctx, hash, token)
	}
	return token, nil
}

// Revoke marks the token revoked and purges it from the caches
func (s *CachedTokenStore) Revoke(ctx context.Context, id int64, at time.Time) error {
	if err := s.TokenStore.Revoke(ctx, id, at); err != nil {
		return err
	}
	s.invalidateByID(ctx, id)
	return nil
}

// RevokeAllForAccount revokes every live token for the account and purges
// them from the caches
func (s *CachedTokenStore) RevokeAllForAccount(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	revoked, err := s.TokenStore.RevokeAllForAccount(ctx, accountID, at)
	if err != nil {
		return 0, err
	}
	s.invalidateByAccount(ctx, accountID)
	return revoked, nil
}

// invalidateByAccount drops every cached token belonging to the account
func (s *CachedTokenStore) invalidateByAccount(ctx context.Context, accountID int64) {
	for _, hash := range s.l1.Keys() {
		if token, ok := s.l1.Peek(hash); ok && token.AccountID == accountID {
			s.l1.Remove(hash)
			if s.redis != nil {
				if err := s.redis.Del(ctx, s.redisKey(hash)).Err(); err != nil && s.logger != nil {
					s.logger.WithError(err).Warn("failed to purge revoked token from redis")
				}
			}
		}
	}
}

// invalidateByID drops any cached entry for the token. The caches key by
// hash, so scan L1 for the matching ID; Redis entries simply age out within
// the TTL.
func (s *CachedTokenStore) invalidateByID(ctx context.Context, id int64) {
	for _, hash := range s.l1.Keys() {
		if token, ok := s.l1.Peek(hash); ok && token.ID == id {
			s.l1.Remove(hash)
			if s.redis != nil {
				if err := s.redis.Del(ctx, s.redisKey(hash)).Err(); err != nil && s.logger != nil {
					s.logger.WithError(err).Warn("failed to purge revoked token from redis")
				}
			}
			return
		}
	}
}

func (s *CachedTokenStore) redisKey(hash string) string {
	return fmt.Sprintf("roster:token:%s", hash)
}

func (s *CachedTokenStore) redisGet(ctx context.Context, hash string) (*auth.Token, error) {
	data, err := s.redis.Get(ctx, s.redisKey(hash)).Bytes()
	if err != nil {
		if err != redis.Nil && s.logger != nil {
			s.logger.WithError(err).Debug("redis token cache read failed")
		}
		return nil, err
	}

	var cached auth.Token
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	// TokenHash is json:"-" so restore it from the key.
	cached.TokenHash = hash
	return &cached, nil
}

func (s *CachedTokenStore) redisSet(ctx context.Context, hash string, token *auth.Token) {
	data, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.redisKey(hash), data, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.WithError(err).Debug("redis token cache write failed")
	}
}

func (s *CachedTokenStore) hit() {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(tokenCacheName).Inc()
	}
}

func (s *CachedTokenStore) miss() {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(tokenCacheName).Inc()
	}
}
