package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var _ SessionStore = (*RedisStore)(nil)

// RedisStore keeps sessions in Redis with SETEX / GET / DEL.
//
// The client owns a connection pool; each command borrows a connection and
// returns it when the reply arrives, so nothing is held across requests.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	keyer
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Secret   string
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisStore(client, opts.TTL, opts.Secret)
}

func newRedisStore(client *redis.Client, ttl time.Duration, secret string) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, keyer: keyer{secret: []byte(secret)}}
}

func (s *RedisStore) Set(ctx context.Context, token, username string) (bool, error) {
	key := s.key(token)
	if username == "" {
		return false, errors.New("cache: empty username")
	}
	res, err := s.client.SetEX(ctx, key, username, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis setex: %w", err)
	}
	return res == "OK", nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis del: %w", err)
	}
	return n > 0, nil
}

// Ping checks that the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
