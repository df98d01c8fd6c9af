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

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, id uint, prefs model.UserPreferences) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"pref_default_model": prefs.DefaultModel,
		"pref_theme":         prefs.Theme,
		"pref_language":      prefs.Language,
	}).Error; err != nil {
		return fmt.Errorf("update preferences failed: %w", err)
	}
	return nil
}

// AddUsage adjusts the usage counters by the given deltas; counters never go
// below zero.
func (r *UserRepository) AddUsage(ctx context.Context, id uint, chats, messages, tokens int) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"usage_total_chats":       counterExpr("usage_total_chats", chats),
		"usage_total_messages":    counterExpr("usage_total_messages", messages),
		"usage_total_tokens_used": counterExpr("usage_total_tokens_used", tokens),
		"last_active_at":          time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("update usage failed: %w", err)
	}
	return nil
}

func counterExpr(column string, delta int) clause.Expr {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column), delta, delta)
}
