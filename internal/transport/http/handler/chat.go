package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/app"
	"galaxychat/internal/catalog"
	"galaxychat/internal/model"
	"galaxychat/internal/pkg/logger"
	"galaxychat/internal/transport/http/response"
)

const ChatIDHeader = "X-Chat-Id"

type ChatHandler struct {
	chatService *app.ChatService
	models      *catalog.Catalog
}

type TurnRequest struct {
	Messages    []app.IncomingMessage `json:"messages" binding:"required"`
	ModelID     string                `json:"model_id"`
	ChatID      string                `json:"chat_id"`
	SaveToChat  bool                  `json:"save_to_chat"`
	Attachments []model.Attachment    `json:"attachments"`
}

func NewChatHandler(chatService *app.ChatService, models *catalog.Catalog) *ChatHandler {
	return &ChatHandler{chatService: chatService, models: models}
}

// Models lists the catalog in display order.
func (h *ChatHandler) Models(c *gin.Context) {
	response.OK(c, gin.H{
		"models":               h.models.All(),
		"default_model":        h.models.Default().Key,
		"image_upload_enabled": h.models.ImageUploadEnabled,
		"max_file_size_mb":     h.models.MaxFileSizeMB,
		"supported_file_types": h.models.SupportedFileTypes,
	})
}

// Turn streams one completion as server-sent events. Data lines carry text
// deltas; the stream ends with a done or an error event.
func (h *ChatHandler) Turn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "messages are required")
		return
	}
	userID, _ := getUserIDFromContext(c)

	turn, err := h.chatService.PrepareTurn(c.Request.Context(), app.TurnInput{
		UserID:      userID,
		ChatID:      req.ChatID,
		ModelKey:    req.ModelID,
		Messages:    app.ToMessages(req.Messages),
		Attachments: req.Attachments,
		SaveToChat:  req.SaveToChat,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMessagesRequired):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrModelNotFound):
			response.Error(c, http.StatusBadRequest, response.CodeModelNotFound, err.Error())
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "prepare chat turn failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	if turn.ChatID != "" {
		c.Header(ChatIDHeader, turn.ChatID)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}
	c.Status(http.StatusOK)

	full, err := h.chatService.StreamTurn(c.Request.Context(), turn, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logger.FromContext(c).WithFields(log.Fields{"user_id": userID, "chat_id": turn.ChatID, "model": turn.Model.Key}).
			Errorf("chat turn failed: %v", err)
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(err.Error())))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(full) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}
