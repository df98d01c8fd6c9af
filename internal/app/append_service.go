package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/model"
	"galaxychat/internal/repository"
)

// MessagePublisher hands a single message append to the persistence path.
type MessagePublisher interface {
	Publish(ctx context.Context, job model.AppendJob) error
}

type RecentChatsCache interface {
	GetRecent(ctx context.Context, userID uint) ([]model.Chat, bool, error)
	SetRecent(ctx context.Context, userID uint, chats []model.Chat) error
	Invalidate(ctx context.Context, userID uint) error
	IsDirty(ctx context.Context, userID uint) (bool, error)
}

// AppendService applies queued appends: the message row, the chat's
// updated_at and model id, the user's message counter and the recent-chats
// cache.
type AppendService struct {
	chats *repository.ChatRepository
	users *repository.UserRepository
	cache RecentChatsCache
}

func NewAppendService(chats *repository.ChatRepository, users *repository.UserRepository, cache RecentChatsCache) *AppendService {
	return &AppendService{chats: chats, users: users, cache: cache}
}

func (s *AppendService) Apply(ctx context.Context, job model.AppendJob) error {
	if job.UserID == 0 || strings.TrimSpace(job.ChatID) == "" || !job.Message.Role.Valid() {
		return ErrInvalidInput
	}

	msg := job.Message.Clone()
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	found, err := s.chats.AppendMessage(ctx, job.ChatID, job.UserID, &msg, job.ModelID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrChatNotFound, job.ChatID)
	}

	if err := s.users.AddUsage(ctx, job.UserID, 0, 1, 0); err != nil {
		log.WithField("user_id", job.UserID).Warnf("update message usage failed: %v", err)
	}
	invalidate(ctx, s.cache, job.UserID)
	return nil
}

// InlinePublisher applies appends synchronously when no broker is configured.
type InlinePublisher struct {
	appender *AppendService
}

func NewInlinePublisher(appender *AppendService) *InlinePublisher {
	return &InlinePublisher{appender: appender}
}

func (p *InlinePublisher) Publish(ctx context.Context, job model.AppendJob) error {
	return p.appender.Apply(ctx, job)
}

func invalidate(ctx context.Context, cache RecentChatsCache, userID uint) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, userID); err != nil {
		log.WithField("user_id", userID).Warnf("invalidate recent chats cache failed: %v", err)
	}
}
