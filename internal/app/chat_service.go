package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/ai"
	"galaxychat/internal/catalog"
	"galaxychat/internal/chatcontext"
	"galaxychat/internal/model"
	"galaxychat/internal/repository"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrModelNotFound    = errors.New("model not found")
	ErrMessagesRequired = errors.New("messages are required")
	ErrMessageEnqueue   = errors.New("message enqueue failed")
)

const (
	defaultChatTitle = "New Chat"
	maxTitleLength   = 50
	emptyReply       = "The model returned an empty response."
)

type ChatOptions struct {
	SystemPrompt     string
	Temperature      float64
	DefaultMaxTokens int
	PDFMaxPages      int
	MaxMessages      int
}

type ChatService struct {
	chats     *repository.ChatRepository
	users     *repository.UserRepository
	cache     RecentChatsCache
	publisher MessagePublisher
	assembler *chatcontext.Assembler
	models    *catalog.Catalog
	completer ai.Completer
	expander  ai.AttachmentExpander
	opts      ChatOptions
	now       func() time.Time
}

type ChatServiceDeps struct {
	Chats     *repository.ChatRepository
	Users     *repository.UserRepository
	Cache     RecentChatsCache
	Publisher MessagePublisher
	Assembler *chatcontext.Assembler
	Models    *catalog.Catalog
	Completer ai.Completer
	Expander  ai.AttachmentExpander
}

func NewChatService(deps ChatServiceDeps, opts ChatOptions) *ChatService {
	if opts.Temperature <= 0 {
		opts.Temperature = ai.DefaultTemperature
	}
	if opts.DefaultMaxTokens <= 0 {
		opts.DefaultMaxTokens = ai.DefaultMaxTokens
	}
	return &ChatService{
		chats:     deps.Chats,
		users:     deps.Users,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		assembler: deps.Assembler,
		models:    deps.Models,
		completer: deps.Completer,
		expander:  deps.Expander,
		opts:      opts,
		now:       time.Now,
	}
}

// IncomingMessage is a message as clients send it. Timestamp is RFC 3339;
// anything unparsable is treated as unknown.
type IncomingMessage struct {
	ID          string             `json:"id"`
	Role        model.Role         `json:"role"`
	Content     string             `json:"content"`
	Timestamp   string             `json:"timestamp"`
	Attachments []model.Attachment `json:"attachments"`
}

func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ToMessages converts client messages. Missing ids are generated; missing
// timestamps stay zero so they sort as oldest.
func ToMessages(in []IncomingMessage) []model.Message {
	out := make([]model.Message, 0, len(in))
	for _, m := range in {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = uuid.NewString()
		}
		role := m.Role
		if !role.Valid() {
			role = model.RoleUser
		}
		out = append(out, model.Message{
			MessageID:   id,
			Role:        role,
			Content:     m.Content,
			Timestamp:   ParseTimestamp(m.Timestamp),
			Attachments: append([]model.Attachment(nil), m.Attachments...),
		})
	}
	return out
}

// ChatTitle is the first user message on one line, shortened to fit.
func ChatTitle(messages []model.Message) string {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		title := strings.TrimSpace(strings.Join(strings.FieldsFunc(m.Content, func(r rune) bool {
			return r == '\n' || r == '\r'
		}), " "))
		if title == "" {
			return defaultChatTitle
		}
		runes := []rune(title)
		if len(runes) > maxTitleLength {
			return string(runes[:maxTitleLength-3]) + "..."
		}
		return title
	}
	return defaultChatTitle
}

func (s *ChatService) ListChats(ctx context.Context, userID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chats.ListByUserID(ctx, userID)
}

type CreateChatInput struct {
	Title    string
	ModelID  string
	Messages []model.Message
}

func (s *ChatService) CreateChat(ctx context.Context, userID uint, input CreateChatInput) (*model.Chat, error) {
	title := strings.TrimSpace(input.Title)
	modelID := strings.TrimSpace(input.ModelID)
	if userID == 0 || title == "" || modelID == "" || input.Messages == nil {
		return nil, ErrInvalidInput
	}

	now := s.now()
	messages := make([]model.Message, len(input.Messages))
	for i, m := range input.Messages {
		messages[i] = m.Clone()
		if messages[i].MessageID == "" {
			messages[i].MessageID = uuid.NewString()
		}
		if messages[i].Timestamp.IsZero() {
			messages[i].Timestamp = now
		}
	}

	chat := &model.Chat{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    title,
		ModelID:  modelID,
		Messages: messages,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	if err := s.users.AddUsage(ctx, userID, 1, 0, 0); err != nil {
		log.WithField("user_id", userID).Warnf("update chat usage failed: %v", err)
	}
	invalidate(ctx, s.cache, userID)
	return chat, nil
}

func (s *ChatService) GetChat(ctx context.Context, userID uint, chatID string) (*model.Chat, error) {
	if userID == 0 || strings.TrimSpace(chatID) == "" {
		return nil, ErrInvalidInput
	}
	chat, err := s.chats.GetByIDAndUserID(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// UpdateChatInput fields are optional. AddMessage is applied on its own and
// skips every other field.
type UpdateChatInput struct {
	Title      *string
	Messages   []model.Message
	AddMessage *model.Message
	ModelID    *string
	IsArchived *bool
}

func (s *ChatService) UpdateChat(ctx context.Context, userID uint, chatID string, input UpdateChatInput) (*model.Chat, error) {
	if userID == 0 || strings.TrimSpace(chatID) == "" {
		return nil, ErrInvalidInput
	}
	defer invalidate(ctx, s.cache, userID)

	if input.AddMessage != nil {
		msg := input.AddMessage.Clone()
		if msg.MessageID == "" {
			msg.MessageID = uuid.NewString()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
		found, err := s.chats.AppendMessage(ctx, chatID, userID, &msg, "")
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrChatNotFound
		}
		return s.GetChat(ctx, userID, chatID)
	}

	if input.Messages != nil {
		messages := make([]model.Message, len(input.Messages))
		for i, m := range input.Messages {
			messages[i] = m.Clone()
			if messages[i].MessageID == "" {
				messages[i].MessageID = uuid.NewString()
			}
			if messages[i].Timestamp.IsZero() {
				messages[i].Timestamp = s.now()
			}
		}
		found, err := s.chats.ReplaceMessages(ctx, chatID, userID, messages)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrChatNotFound
		}
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.ModelID != nil {
		updates["model_id"] = strings.TrimSpace(*input.ModelID)
	}
	if input.IsArchived != nil {
		updates["is_archived"] = *input.IsArchived
	}
	found, err := s.chats.Update(ctx, chatID, userID, updates)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrChatNotFound
	}
	return s.GetChat(ctx, userID, chatID)
}

func (s *ChatService) DeleteChat(ctx context.Context, userID uint, chatID string) error {
	if userID == 0 || strings.TrimSpace(chatID) == "" {
		return ErrInvalidInput
	}
	found, err := s.chats.DeleteByIDAndUserID(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrChatNotFound
	}
	if err := s.users.AddUsage(ctx, userID, -1, 0, 0); err != nil {
		log.WithField("user_id", userID).Warnf("update chat usage failed: %v", err)
	}
	invalidate(ctx, s.cache, userID)
	return nil
}
