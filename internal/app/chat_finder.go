package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"galaxychat/internal/model"
	"galaxychat/internal/repository"
)

// RecentChatFinder serves the context assembler's older-chat lookups. It
// reads a per-user snapshot from the cache when one is clean and falls back
// to the database otherwise.
type RecentChatFinder struct {
	chats        *repository.ChatRepository
	cache        RecentChatsCache
	snapshotSize int
}

// NewRecentChatFinder caches snapshots of snapshotSize chats, which should
// be one more than the largest limit the assembler asks for so that dropping
// the active chat still leaves a full page.
func NewRecentChatFinder(chats *repository.ChatRepository, cache RecentChatsCache, snapshotSize int) *RecentChatFinder {
	return &RecentChatFinder{chats: chats, cache: cache, snapshotSize: snapshotSize}
}

func (f *RecentChatFinder) FindRecentChats(ctx context.Context, userID uint, excludeChatID string, limit int) ([]model.Chat, error) {
	if limit <= 0 {
		return nil, nil
	}
	chats, err := f.load(ctx, userID, limit+1)
	if err != nil {
		return nil, err
	}
	// chats may be the cache's own slice.
	out := make([]model.Chat, 0, min(limit, len(chats)))
	for _, c := range chats {
		if len(out) == limit {
			break
		}
		if excludeChatID != "" && c.ID == excludeChatID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *RecentChatFinder) load(ctx context.Context, userID uint, n int) ([]model.Chat, error) {
	useCache := f.cache != nil && n <= f.snapshotSize
	if !useCache {
		return f.chats.FindRecent(ctx, userID, "", n)
	}

	logger := log.WithField("user_id", userID)
	dirty, err := f.cache.IsDirty(ctx, userID)
	if err != nil {
		logger.Debugf("recent chats dirty check failed: %v", err)
		dirty = true
	}
	if !dirty {
		cached, hit, err := f.cache.GetRecent(ctx, userID)
		if err != nil {
			logger.Debugf("recent chats cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	chats, err := f.chats.FindRecent(ctx, userID, "", f.snapshotSize)
	if err != nil {
		return nil, err
	}
	if !dirty {
		f.refill(ctx, userID, chats)
	}
	if len(chats) > n {
		chats = chats[:n]
	}
	return chats, nil
}

// refill writes the snapshot unless a write marked the user dirty while the
// database was being read.
func (f *RecentChatFinder) refill(ctx context.Context, userID uint, chats []model.Chat) {
	logger := log.WithField("user_id", userID)
	dirty, err := f.cache.IsDirty(ctx, userID)
	if err != nil || dirty {
		logger.Debug("recent chats changed during load, snapshot not cached")
		return
	}
	if err := f.cache.SetRecent(ctx, userID, chats); err != nil {
		logger.Debugf("recent chats cache write failed: %v", err)
	}
}
