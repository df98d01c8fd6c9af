package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"galaxychat/internal/model"
)

// RecentChatsCache keeps each user's recent non-archived chats (with their
// messages) in redis. A short-lived dirty marker is set on every write so that
// readers skip a snapshot that may still be in flight.
type RecentChatsCache struct {
	client         *redisv9.Client
	recentTTL      time.Duration
	dirtyMarkerTTL time.Duration
}

func NewRecentChatsCache(client *redisv9.Client, recentTTL, dirtyMarkerTTL time.Duration) *RecentChatsCache {
	if recentTTL <= 0 {
		recentTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &RecentChatsCache{
		client:         client,
		recentTTL:      recentTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *RecentChatsCache) GetRecent(ctx context.Context, userID uint) ([]model.Chat, bool, error) {
	raw, err := c.client.Get(ctx, c.recentKey(userID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get recent chats failed: %w", err)
	}

	var chats []model.Chat
	if err := json.Unmarshal([]byte(raw), &chats); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached recent chats failed: %w", err)
	}
	return chats, true, nil
}

func (c *RecentChatsCache) SetRecent(ctx context.Context, userID uint, chats []model.Chat) error {
	payload, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("marshal recent chats cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.recentKey(userID), payload, c.recentTTL).Err(); err != nil {
		return fmt.Errorf("redis set recent chats failed: %w", err)
	}
	return nil
}

// Invalidate drops the snapshot and marks the user dirty.
func (c *RecentChatsCache) Invalidate(ctx context.Context, userID uint) error {
	if err := c.MarkDirty(ctx, userID); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.recentKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete recent chats failed: %w", err)
	}
	return nil
}

func (c *RecentChatsCache) MarkDirty(ctx context.Context, userID uint) error {
	if err := c.client.Set(ctx, c.dirtyKey(userID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *RecentChatsCache) IsDirty(ctx context.Context, userID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *RecentChatsCache) recentKey(userID uint) string {
	return fmt.Sprintf("chat:recent:%d", userID)
}

func (c *RecentChatsCache) dirtyKey(userID uint) string {
	return fmt.Sprintf("chat:recent:dirty:%d", userID)
}
