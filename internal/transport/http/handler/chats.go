package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"galaxychat/internal/app"
	"galaxychat/internal/transport/http/response"
)

type ChatsHandler struct {
	chatService *app.ChatService
}

type CreateChatRequest struct {
	Title    string                `json:"title" binding:"required,max=128"`
	ModelID  string                `json:"model_id" binding:"required,max=64"`
	Messages []app.IncomingMessage `json:"messages" binding:"required"`
}

type UpdateChatRequest struct {
	Title      *string               `json:"title" binding:"omitempty,max=128"`
	Messages   []app.IncomingMessage `json:"messages"`
	AddMessage *app.IncomingMessage  `json:"add_message"`
	ModelID    *string               `json:"model_id" binding:"omitempty,max=64"`
	IsArchived *bool                 `json:"is_archived"`
}

func NewChatsHandler(chatService *app.ChatService) *ChatsHandler {
	return &ChatsHandler{chatService: chatService}
}

func (h *ChatsHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func (h *ChatsHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatsHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "title, messages and model_id are required")
		return
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), userID, app.CreateChatInput{
		Title:    req.Title,
		ModelID:  req.ModelID,
		Messages: app.ToMessages(req.Messages),
	})
	if err != nil {
		h.writeError(c, err, "create chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatsHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chat, err := h.chatService.GetChat(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		h.writeError(c, err, "get chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatsHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	input := app.UpdateChatInput{
		Title:      req.Title,
		ModelID:    req.ModelID,
		IsArchived: req.IsArchived,
	}
	if req.Messages != nil {
		input.Messages = app.ToMessages(req.Messages)
	}
	if req.AddMessage != nil {
		added := app.ToMessages([]app.IncomingMessage{*req.AddMessage})[0]
		input.AddMessage = &added
	}

	chat, err := h.chatService.UpdateChat(c.Request.Context(), userID, c.Param("chatId"), input)
	if err != nil {
		h.writeError(c, err, "update chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatsHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chatID := c.Param("chatId")
	if err := h.chatService.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		h.writeError(c, err, "delete chat failed")
		return
	}
	response.OK(c, gin.H{"deleted_chat_id": chatID})
}
