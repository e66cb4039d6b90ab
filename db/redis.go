package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"minesServer/abuse"
	"minesServer/config"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects and pings a Redis client built from settings
func InitRedis(s config.Settings) (*redis.Client, error) {
	log.Println("🔌 Connecting to Redis...")

	client := redis.NewClient(&redis.Options{
		Addr:         s.RedisURL,
		Password:     s.RedisPassword,
		DB:           s.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("✅ Redis connected successfully - URL: %s", s.RedisURL)
	return client, nil
}

// RedisStore backs the used seed registry, bans and submitter history
type RedisStore struct {
	client     *redis.Client
	historyTTL time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, historyTTL: config.RedisHistoryTTL}
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	log.Println("🔌 Closing Redis connection...")
	return r.client.Close()
}

/* =========================
   USED SEED REGISTRY
   Redis Key: seed:used:{serverSeedHash} -> unix seconds, no expiry
========================= */

func (r *RedisStore) IsUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	n, err := r.client.Exists(ctx, fmt.Sprintf(config.RedisUsedSeedKey, serverSeedHash)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check used seed: %w", err)
	}
	return n > 0, nil
}

// MarkUsed uses SET NX so concurrent processes agree on a single winner
func (r *RedisStore) MarkUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	key := fmt.Sprintf(config.RedisUsedSeedKey, serverSeedHash)
	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark seed used: %w", err)
	}
	return ok, nil
}

/* =========================
   BAN RECORDS
   Redis Key: abuse:ban:{submitterId} -> JSON BanRecord, no expiry
========================= */

func (r *RedisStore) GetBan(ctx context.Context, submitterID string) (*abuse.BanRecord, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf(config.RedisBanKey, submitterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}

	var ban abuse.BanRecord
	if err := json.Unmarshal(data, &ban); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ban: %w", err)
	}
	return &ban, nil
}

func (r *RedisStore) PutBan(ctx context.Context, ban abuse.BanRecord) error {
	data, err := json.Marshal(ban)
	if err != nil {
		return fmt.Errorf("failed to marshal ban: %w", err)
	}

	if err := r.client.Set(ctx, fmt.Sprintf(config.RedisBanKey, ban.SubmitterID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store ban: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteBan(ctx context.Context, submitterID string) error {
	if err := r.client.Del(ctx, fmt.Sprintf(config.RedisBanKey, submitterID)).Err(); err != nil {
		return fmt.Errorf("failed to delete ban: %w", err)
	}
	return nil
}

/* =========================
   SUBMITTER HISTORY
   Redis Key: abuse:history:{submitterId} -> JSON History, TTL refreshed on write
========================= */

func (r *RedisStore) GetHistory(ctx context.Context, submitterID string) (abuse.History, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf(config.RedisHistoryKey, submitterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return abuse.History{}, nil
	}
	if err != nil {
		return abuse.History{}, fmt.Errorf("failed to get history: %w", err)
	}

	var h abuse.History
	if err := json.Unmarshal(data, &h); err != nil {
		return abuse.History{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return h, nil
}

func (r *RedisStore) PutHistory(ctx context.Context, submitterID string, h abuse.History) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := r.client.Set(ctx, fmt.Sprintf(config.RedisHistoryKey, submitterID), data, r.historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to store history: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteHistory(ctx context.Context, submitterID string) error {
	if err := r.client.Del(ctx, fmt.Sprintf(config.RedisHistoryKey, submitterID)).Err(); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

/* =========================
   HEALTH CHECK
========================= */

// HealthCheck performs a Redis health check
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
