package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"galaxychat/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create stores the chat and its initial messages in append order.
func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	for i := range chat.Messages {
		chat.Messages[i].ChatID = chat.ID
		chat.Messages[i].Position = i
	}
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) GetByIDAndUserID(ctx context.Context, chatID string, userID uint) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

// FindRecent returns up to limit non-archived chats of the user, most
// recently updated first, skipping excludeChatID when it is set.
func (r *ChatRepository) FindRecent(ctx context.Context, userID uint, excludeChatID string, limit int) ([]model.Chat, error) {
	query := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("user_id = ? AND is_archived = ?", userID, false)
	if excludeChatID != "" {
		query = query.Where("id <> ?", excludeChatID)
	}

	var chats []model.Chat
	if err := query.Order("updated_at DESC").Limit(limit).Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("find recent chats failed: %w", err)
	}
	return chats, nil
}

// Update applies column updates to a chat owned by userID and reports
// whether the chat exists.
func (r *ChatRepository) Update(ctx context.Context, chatID string, userID uint, updates map[string]interface{}) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", chatID, userID).
			First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		if updates == nil {
			updates = map[string]interface{}{}
		}
		updates["updated_at"] = time.Now()
		return tx.Model(&chat).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("update chat failed: %w", err)
	}
	return found, nil
}

// AppendMessage adds msg at the end of the chat and refreshes the chat's
// updated_at (and model id when given). It reports whether the chat exists.
func (r *ChatRepository) AppendMessage(ctx context.Context, chatID string, userID uint, msg *model.Message, modelID string) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", chatID, userID).
			First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true

		var last int
		if err := tx.Model(&model.Message{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(position), -1)").
			Scan(&last).Error; err != nil {
			return err
		}
		msg.PK = 0
		msg.ChatID = chatID
		msg.Position = last + 1
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if modelID != "" {
			updates["model_id"] = modelID
		}
		return tx.Model(&chat).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("append message failed: %w", err)
	}
	return found, nil
}

// ReplaceMessages swaps the whole message list of a chat.
func (r *ChatRepository) ReplaceMessages(ctx context.Context, chatID string, userID uint, messages []model.Message) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", chatID, userID).
			First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true

		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		for i := range messages {
			messages[i].PK = 0
			messages[i].ChatID = chatID
			messages[i].Position = i
		}
		if len(messages) > 0 {
			if err := tx.Create(&messages).Error; err != nil {
				return err
			}
		}
		return tx.Model(&chat).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return false, fmt.Errorf("replace messages failed: %w", err)
	}
	return found, nil
}

func (r *ChatRepository) DeleteByIDAndUserID(ctx context.Context, chatID string, userID uint) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", chatID, userID).Limit(1).Find(&model.Chat{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		found = true
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", chatID, userID).Delete(&model.Chat{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete chat failed: %w", err)
	}
	return found, nil
}
