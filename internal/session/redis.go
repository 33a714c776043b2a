// Package session keeps per-shopper state in Redis: the cart snapshot, the
// selected branch, the logged-in account and checkout idempotency keys.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	DefaultCartTTL        = 7 * 24 * time.Hour
	DefaultBranchTTL      = 30 * time.Minute
	DefaultAccountTTL     = 24 * time.Hour
	DefaultIdempotencyTTL = 24 * time.Hour
)

type TTLs struct {
	Cart        time.Duration
	Branch      time.Duration
	Account     time.Duration
	Idempotency time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Cart:        DefaultCartTTL,
		Branch:      DefaultBranchTTL,
		Account:     DefaultAccountTTL,
		Idempotency: DefaultIdempotencyTTL,
	}
}

type RedisStore struct {
	rdb  *redis.Client
	ttls TTLs
}

func NewRedisStore(rdb *redis.Client, ttls TTLs) *RedisStore {
	return &RedisStore{rdb: rdb, ttls: ttls}
}

func CartKey(session string) string    { return fmt.Sprintf("storefront:cart:%s", session) }
func BranchKey(session string) string  { return fmt.Sprintf("storefront:branch:%s", session) }
func AccountKey(session string) string { return fmt.Sprintf("storefront:account:%s", session) }
func IdempotencyKey(key string) string { return fmt.Sprintf("storefront:idempotency:%s", key) }

// SaveCart writes the full cart snapshot and restarts its expiry.
func (s *RedisStore) SaveCart(ctx context.Context, session string, lines []entity.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, CartKey(session), data, s.ttls.Cart).Err()
}

// LoadCart returns nil when nothing is persisted for the session.
func (s *RedisStore) LoadCart(ctx context.Context, session string) ([]entity.CartLine, error) {
	data, err := s.rdb.Get(ctx, CartKey(session)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var lines []entity.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		// corrupt snapshots start the session empty
		logger.Error().Err(err).Msgf("Error unmarshalling cart for session %s", session)
		return nil, nil
	}
	return lines, nil
}

func (s *RedisStore) DeleteCart(ctx context.Context, session string) error {
	return s.rdb.Del(ctx, CartKey(session)).Err()
}

func (s *RedisStore) SaveBranch(ctx context.Context, session, branch string) error {
	return s.rdb.Set(ctx, BranchKey(session), branch, s.ttls.Branch).Err()
}

// LoadBranch returns "" when no branch is selected or the selection expired.
func (s *RedisStore) LoadBranch(ctx context.Context, session string) (string, error) {
	branch, err := s.rdb.Get(ctx, BranchKey(session)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return branch, nil
}

func (s *RedisStore) SaveAccount(ctx context.Context, session string, account entity.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, AccountKey(session), data, s.ttls.Account).Err()
}

// LoadAccount returns nil when the session is not logged in.
func (s *RedisStore) LoadAccount(ctx context.Context, session string) (*entity.Account, error) {
	data, err := s.rdb.Get(ctx, AccountKey(session)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var account entity.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *RedisStore) DeleteAccount(ctx context.Context, session string) error {
	return s.rdb.Del(ctx, AccountKey(session)).Err()
}

// ClaimIdempotencyKey reports false when the key was already claimed.
func (s *RedisStore) ClaimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, IdempotencyKey(key), "exists", s.ttls.Idempotency).Result()
}

func (s *RedisStore) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, IdempotencyKey(key)).Err()
}
