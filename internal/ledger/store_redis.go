package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps balances in Redis. Adjust runs under WATCH so the
// balance observed is the balance committed against: a concurrent mutation
// of the same identity forces a retry instead of a lost update.
type RedisStore struct {
	rdb *redis.Client
}

const adjustRetries = 5

func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis account store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func balanceKey(identity string) string { return "acct:balance:" + strings.TrimSpace(identity) }

func (s *RedisStore) Balance(ctx context.Context, identity string) (int64, error) {
	raw, err := s.rdb.Get(ctx, balanceKey(identity)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("corrupt balance for %s: %w", identity, perr)
	}
	return n, nil
}

func (s *RedisStore) Adjust(ctx context.Context, identity string, delta int64) (int64, error) {
	key := balanceKey(identity)
	var newBalance int64
	for attempt := 0; attempt < adjustRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			var cur int64
			switch {
			case err == redis.Nil:
				cur = 0
			case err != nil:
				return err
			default:
				cur, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
				if err != nil {
					return fmt.Errorf("corrupt balance for %s: %w", identity, err)
				}
			}
			next := cur + delta
			if next < 0 {
				return ErrInsufficientFunds
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, strconv.FormatInt(next, 10), 0)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			newBalance = next
			return nil
		}, key)
		if err == nil {
			return newBalance, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // concurrent writer, re-read and retry
		}
		if errors.Is(err, ErrInsufficientFunds) {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return 0, fmt.Errorf("%w: adjust contention on %s", ErrUnavailable, identity)
}

// Seed force-sets a balance. Provisioning and tests only.
func (s *RedisStore) Seed(ctx context.Context, identity string, balance int64) error {
	return s.rdb.Set(ctx, balanceKey(identity), strconv.FormatInt(balance, 10), 0).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
