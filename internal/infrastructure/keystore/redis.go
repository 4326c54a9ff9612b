package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/worldwatch/intel-backend/internal/infrastructure/config"
)

// redisStore implements Store on Redis. Writes have no TTL: the pipeline
// treats the store as durable, not as a cache.
type redisStore struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection before
// returning the store.
func NewRedisStore(cfg *config.RedisConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("keystore initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB))

	return &redisStore{
		client: client,
		logger: logger,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		s.logger.Error("keystore get failed", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("keystore get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Error("keystore entry unmarshal failed", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("keystore entry unmarshal failed: %w", err)
	}
	return entry.Data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("keystore value marshal failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("keystore value marshal failed: %w", err)
	}

	envelope, err := json.Marshal(Entry{Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("keystore envelope marshal failed: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+key, envelope, 0).Err(); err != nil {
		s.logger.Error("keystore set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("keystore set failed: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("keystore close failed", zap.Error(err))
		return fmt.Errorf("keystore close failed: %w", err)
	}
	return nil
}
