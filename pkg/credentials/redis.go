package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that stores username -> bcrypt hash.
const DefaultRedisKey = "stompd:users"

// RedisRepository stores accounts in a single Redis hash.
type RedisRepository struct {
	client redis.Cmdable
	key    string
}

// NewRedisRepository wraps client. An empty key selects DefaultRedisKey.
func NewRedisRepository(client redis.Cmdable, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

// ConnectRedis parses a redis:// or rediss:// URL and verifies the server
// answers PING.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get implements UserRepository.
func (r *RedisRepository) Get(ctx context.Context, username string) (User, error) {
	hash, err := r.client.HGet(ctx, r.key, username).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user %q: %w", username, err)
	}
	return User{Username: username, PasswordHash: hash}, nil
}

// Create implements UserRepository. HSETNX makes concurrent registrations of
// the same name race-free across broker processes.
func (r *RedisRepository) Create(ctx context.Context, user User) error {
	created, err := r.client.HSetNX(ctx, r.key, user.Username, user.PasswordHash).Result()
	if err != nil {
		return fmt.Errorf("create user %q: %w", user.Username, err)
	}
	if !created {
		return ErrUserExists
	}
	return nil
}
