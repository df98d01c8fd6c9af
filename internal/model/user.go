package model

import "time"

type User struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Username     string          `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string          `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string          `gorm:"size:255;not null" json:"-"`
	Preferences  UserPreferences `gorm:"embedded;embeddedPrefix:pref_" json:"preferences"`
	Usage        UserUsage       `gorm:"embedded;embeddedPrefix:usage_" json:"usage"`
	LastActiveAt time.Time       `json:"last_active_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type UserPreferences struct {
	DefaultModel string `gorm:"size:64" json:"default_model"`
	Theme        string `gorm:"size:16;default:system" json:"theme"`
	Language     string `gorm:"size:16;default:en" json:"language"`
}

type UserUsage struct {
	TotalChats      int `gorm:"not null;default:0" json:"total_chats"`
	TotalMessages   int `gorm:"not null;default:0" json:"total_messages"`
	TotalTokensUsed int `gorm:"not null;default:0" json:"total_tokens_used"`
}
