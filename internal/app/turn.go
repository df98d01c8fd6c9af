package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/ai"
	"galaxychat/internal/catalog"
	"galaxychat/internal/chatcontext"
	"galaxychat/internal/model"
)

type TurnInput struct {
	UserID      uint
	ChatID      string
	ModelKey    string
	Messages    []model.Message
	Attachments []model.Attachment
	SaveToChat  bool
}

// Turn is a prepared completion. ChatID names the chat being continued; the
// reply is appended to it only when the user's side was stored.
type Turn struct {
	ChatID       string
	UserID       uint
	Model        catalog.Model
	Prompt       []ai.ChatMessage
	PromptTokens int
	persisted    bool
}

// PrepareTurn validates the request, stores the user's side of the turn and
// builds the prompt. Storage failures other than a foreign chat id are
// logged and the turn goes on unsaved.
func (s *ChatService) PrepareTurn(ctx context.Context, input TurnInput) (*Turn, error) {
	if len(input.Messages) == 0 {
		return nil, ErrMessagesRequired
	}
	m, err := s.resolveModel(ctx, input.UserID, input.ModelKey)
	if err != nil {
		return nil, err
	}

	messages := chatcontext.Reconcile(input.Messages, input.Attachments)
	turn := &Turn{UserID: input.UserID, Model: m, ChatID: strings.TrimSpace(input.ChatID)}
	logger := log.WithFields(log.Fields{"user_id": input.UserID, "chat_id": turn.ChatID, "model": m.Key})

	if input.UserID != 0 && input.SaveToChat {
		if turn.ChatID == "" {
			chat, err := s.CreateChat(ctx, input.UserID, CreateChatInput{
				Title:    ChatTitle(messages),
				ModelID:  m.Key,
				Messages: messages,
			})
			if err != nil {
				logger.Errorf("create chat for turn failed: %v", err)
			} else {
				turn.ChatID = chat.ID
				turn.persisted = true
			}
		} else {
			chat, err := s.chats.GetByIDAndUserID(ctx, turn.ChatID, input.UserID)
			switch {
			case err != nil:
				logger.Errorf("load chat for turn failed: %v", err)
			case chat == nil:
				return nil, ErrChatNotFound
			default:
				last := messages[len(messages)-1].Clone()
				if last.Timestamp.IsZero() {
					last.Timestamp = s.now()
				}
				if err := s.publish(ctx, turn, last); err != nil {
					logger.Errorf("append user message failed, reply will not be stored: %v", err)
				} else {
					turn.persisted = true
				}
			}
		}
	}

	assembled := s.assembler.Assemble(ctx, chatcontext.Request{
		Messages:    messages,
		UserID:      input.UserID,
		ChatID:      turn.ChatID,
		MaxMessages: s.opts.MaxMessages,
	})

	turn.Prompt = ai.BuildPrompt(ctx, assembled, ai.PromptOptions{
		SystemPrompt:   s.opts.SystemPrompt,
		Now:            s.now(),
		SupportsImages: m.Image,
		PDFMaxPages:    s.opts.PDFMaxPages,
		Expander:       s.expander,
	})
	turn.PromptTokens = ai.EstimatePromptTokens(turn.Prompt)
	if !ai.FitsContextWindow(m, turn.PromptTokens) {
		logger.Warnf("estimated %d prompt tokens exceed the %d token context window", turn.PromptTokens, m.ContextWindow)
	}
	logger.WithFields(log.Fields{
		"incoming":  len(messages),
		"assembled": len(assembled),
		"tokens":    turn.PromptTokens,
	}).Debug("turn prepared")
	return turn, nil
}

// StreamTurn runs the completion and stores the reply when the turn is
// persisted.
func (s *ChatService) StreamTurn(ctx context.Context, turn *Turn, onChunk func(string) error) (string, error) {
	maxTokens := turn.Model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.opts.DefaultMaxTokens
	}
	full, err := s.completer.Stream(ctx, ai.StreamRequest{
		Model:       turn.Model,
		Messages:    turn.Prompt,
		Temperature: s.opts.Temperature,
		MaxTokens:   maxTokens,
	}, onChunk)
	if err != nil {
		return "", err
	}

	if turn.UserID == 0 {
		return full, nil
	}
	logger := log.WithFields(log.Fields{"user_id": turn.UserID, "chat_id": turn.ChatID})
	if turn.persisted {
		reply := strings.TrimSpace(full)
		if reply == "" {
			reply = emptyReply
		}
		if err := s.publish(ctx, turn, model.Message{
			Role:      model.RoleAssistant,
			Content:   reply,
			Timestamp: s.now(),
		}); err != nil {
			logger.Errorf("append assistant message failed: %v", err)
		}
	}
	tokens := turn.PromptTokens + ai.EstimateTokens(full)
	if err := s.users.AddUsage(ctx, turn.UserID, 0, 0, tokens); err != nil {
		logger.Warnf("update token usage failed: %v", err)
	}
	return full, nil
}

func (s *ChatService) publish(ctx context.Context, turn *Turn, msg model.Message) error {
	if s.publisher == nil {
		return ErrMessageEnqueue
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	return s.publisher.Publish(ctx, model.AppendJob{
		ChatID:  turn.ChatID,
		UserID:  turn.UserID,
		ModelID: turn.Model.Key,
		Message: msg,
	})
}

// resolveModel picks the requested model, then the user's default, then the
// catalog default.
func (s *ChatService) resolveModel(ctx context.Context, userID uint, key string) (catalog.Model, error) {
	key = strings.TrimSpace(key)
	if key != "" {
		m, ok := s.models.Get(key)
		if !ok {
			return catalog.Model{}, ErrModelNotFound
		}
		return m, nil
	}
	if userID != 0 {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			log.WithField("user_id", userID).Warnf("load user preferences failed: %v", err)
		} else if user != nil && user.Preferences.DefaultModel != "" {
			if m, ok := s.models.Get(user.Preferences.DefaultModel); ok {
				return m, nil
			}
		}
	}
	m, ok := s.models.Resolve("")
	if !ok {
		return catalog.Model{}, ErrModelNotFound
	}
	return m, nil
}
