package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matthewbaird/accountdesk/internal/wizard"
)

const redisKeyPrefix = "accountdesk:session:"

// RedisStore keeps sessions in Redis with the idle timeout as key TTL, so
// expiry needs no sweeping.
type RedisStore struct {
	rdb         *goredis.Client
	codec       wizard.Codec
	idleTimeout time.Duration
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *goredis.Client, codec wizard.Codec, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, codec: codec, idleTimeout: idleOrDefault(idleTimeout)}
}

func key(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (wizard.Session, bool, error) {
	raw, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return wizard.Session{}, false, nil
	}
	if err != nil {
		return wizard.Session{}, false, fmt.Errorf("loading session: %w", err)
	}
	sess, err := s.codec.Decode(raw)
	if err != nil {
		return wizard.Session{}, false, err
	}
	return sess, true, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, sess wizard.Session) error {
	raw, err := s.codec.Encode(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key(id), raw, s.idleTimeout).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires idle keys itself.
func (s *RedisStore) Cleanup(context.Context) (int, error) { return 0, nil }
