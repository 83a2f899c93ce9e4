package store

import (
	"context"
	"encoding/json"
	"fmt"

	"Argus/internal/models"

	"github.com/go-redis/redis/v8"
)

// ConfigStore defines the interface for per-scope agent configuration
// persistence. One durable record per scope; writes are last-writer-wins.
type ConfigStore interface {
	// Get returns the stored configuration for scope, or nil when none exists.
	Get(ctx context.Context, scope string) (*models.AgentConfig, error)
	// Put overwrites the configuration for scope wholesale.
	Put(ctx context.Context, scope string, cfg *models.AgentConfig) error
}

const configKeyPrefix = "agentconfig:"

// RedisConfigStore is an implementation of ConfigStore using Redis, one key
// per scope holding the JSON-encoded bag.
type RedisConfigStore struct {
	client *redis.Client
}

// NewRedisConfigStore creates a new RedisConfigStore.
func NewRedisConfigStore(client *redis.Client) *RedisConfigStore {
	return &RedisConfigStore{client: client}
}

// Get retrieves the configuration for scope.
func (s *RedisConfigStore) Get(ctx context.Context, scope string) (*models.AgentConfig, error) {
	data, err := s.client.Get(ctx, configKeyPrefix+scope).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cfg models.AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("stored configuration for scope %q is corrupt: %w", scope, err)
	}
	return &cfg, nil
}

// Put stores the configuration for scope.
func (s *RedisConfigStore) Put(ctx context.Context, scope string, cfg *models.AgentConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, configKeyPrefix+scope, data, 0).Err()
}
