package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.Type, "image/")
}

func (a Attachment) IsPDF() bool {
	return a.Type == "application/pdf"
}

// Message is one turn of a chat. Stored rows are keyed by PK and ordered by
// Position; MessageID is the caller-visible id, unique within its chat.
type Message struct {
	PK          uint         `gorm:"primaryKey;column:pk" json:"-"`
	ChatID      string       `gorm:"size:36;not null;index:idx_messages_chat_position,priority:1" json:"-"`
	Position    int          `gorm:"not null;index:idx_messages_chat_position,priority:2" json:"-"`
	MessageID   string       `gorm:"column:message_id;size:64;not null" json:"id"`
	Role        Role         `gorm:"size:16;not null" json:"role"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `gorm:"serializer:json;type:text" json:"attachments,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}

// AppendJob is a single message append routed through the persistence queue.
type AppendJob struct {
	ChatID  string  `json:"chat_id"`
	UserID  uint    `json:"user_id"`
	ModelID string  `json:"model_id,omitempty"`
	Message Message `json:"message"`
}
