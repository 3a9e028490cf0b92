package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "akibot:"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	// Prefix is prepended to every key; "akibot:" when empty.
	Prefix string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// Redis is a Repository keeping users in the set <prefix>users and each
// lock under <prefix>lock:<chat id>.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("storage: redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}
	return NewRedis(client, cfg.Prefix), nil
}

// NewRedis wraps an existing client. Close closes client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) usersKey() string { return r.prefix + "users" }

func (r *Redis) lockKey(chatID int64) string {
	return r.prefix + "lock:" + strconv.FormatInt(chatID, 10)
}

// SaveUser implements Repository.
func (r *Redis) SaveUser(ctx context.Context, userID int64) error {
	if err := r.client.SAdd(ctx, r.usersKey(), userID).Err(); err != nil {
		return fmt.Errorf("storage: save_user: %w", err)
	}
	return nil
}

// CountUsers implements Repository.
func (r *Redis) CountUsers(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.usersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return int(n), nil
}

// LockChat implements Repository.
func (r *Redis) LockChat(ctx context.Context, chatID, lockedBy int64) error {
	if err := r.client.Set(ctx, r.lockKey(chatID), lockedBy, 0).Err(); err != nil {
		return fmt.Errorf("storage: lock_chat: %w", err)
	}
	return nil
}

// UnlockChat implements Repository.
func (r *Redis) UnlockChat(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, r.lockKey(chatID)).Err(); err != nil {
		return fmt.Errorf("storage: unlock_chat: %w", err)
	}
	return nil
}

// IsChatLocked implements Repository.
func (r *Redis) IsChatLocked(ctx context.Context, chatID int64) (bool, error) {
	n, err := r.client.Exists(ctx, r.lockKey(chatID)).Result()
	if err != nil {
		return false, fmt.Errorf("storage: lock lookup: %w", err)
	}
	return n > 0, nil
}

// Close implements Repository.
func (r *Redis) Close() error {
	return r.client.Close()
}
