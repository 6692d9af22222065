package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/service"
	"github.com/vedran77/sprout/internal/transport/http/middleware"
	"github.com/vedran77/sprout/pkg/validator"
)

type ChatHandler struct {
	chatService *service.ChatService
	log         *logger.Logger
}

func NewChatHandler(chatService *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, log: log.With("component", "chat_handler")}
}

func (h *ChatHandler) GetOrCreateChat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	chat, err := h.chatService.GetOrCreateChat(r.Context(), userID, input.UserID)
	if err != nil {
		writeServiceError(w, h.log, "get or create chat", err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	chats, err := h.chatService.ListChats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, "list chats", err)
		return
	}

	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid chat ID")
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.MessageType == "" {
		input.MessageType = "text"
	}
	if errs := validator.ValidateSendMessage(string(input.MessageType), input.Content, input.MediaURL); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), userID, chatID, input)
	if err != nil {
		writeServiceError(w, h.log, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid chat ID")
		return
	}

	page := 0
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
			page = p
		}
	}

	size := service.DefaultPageSize
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= service.MaxPageSize {
			size = s
		}
	}

	resp, err := h.chatService.GetChatMessages(r.Context(), chatID, userID, page, size)
	if err != nil {
		writeServiceError(w, h.log, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
