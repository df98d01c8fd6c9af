package model

import "time"

type Chat struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     uint      `gorm:"not null;index:idx_chats_user_recent,priority:1" json:"user_id"`
	Title      string    `gorm:"size:128;not null" json:"title"`
	ModelID    string    `gorm:"size:64;not null" json:"model_id"`
	IsArchived bool      `gorm:"not null;default:false;index:idx_chats_user_recent,priority:2" json:"is_archived"`
	Messages   []Message `gorm:"foreignKey:ChatID;references:ID" json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `gorm:"index:idx_chats_user_recent,priority:3" json:"updated_at"`
}
