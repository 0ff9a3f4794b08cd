package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const settingsKey = "scheduling:settings"

// SettingsCache holds the last loaded scheduling settings.
type SettingsCache interface {
	Get(ctx context.Context) (schedule.Settings, bool, error)
	Set(ctx context.Context, s schedule.Settings) error
	Invalidate(ctx context.Context) error
}

type redisSettingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSettingsCache(client *redis.Client, ttl time.Duration) SettingsCache {
	return &redisSettingsCache{client: client, ttl: ttl}
}

func (c *redisSettingsCache) Get(ctx context.Context) (schedule.Settings, bool, error) {
	data, err := c.client.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return schedule.Settings{}, false, nil
	}
	if err != nil {
		return schedule.Settings{}, false, fmt.Errorf("get cached settings: %w", err)
	}

	var s schedule.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		// a corrupt entry is a miss; the caller reloads and overwrites it
		return schedule.Settings{}, false, nil
	}
	return s, true, nil
}

func (c *redisSettingsCache) Set(ctx context.Context, s schedule.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := c.client.Set(ctx, settingsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache settings: %w", err)
	}
	return nil
}

func (c *redisSettingsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, settingsKey).Err(); err != nil {
		return fmt.Errorf("invalidate settings: %w", err)
	}
	return nil
}
