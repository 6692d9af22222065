package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vedran77/sprout/internal/envelope"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/service"
	"github.com/vedran77/sprout/pkg/validator"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

// writeServiceError maps service and cipher errors to responses. Anything
// unrecognised is logged and reported as INTERNAL.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not allowed to access this chat")
	case errors.Is(err, service.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Chat not found")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrStoryNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Story not found")
	case errors.Is(err, service.ErrCannotChatSelf):
		writeError(w, http.StatusBadRequest, "CANNOT_CHAT_SELF", "Cannot start a chat with yourself")
	case errors.Is(err, service.ErrRecipientMismatch):
		writeError(w, http.StatusBadRequest, "RECIPIENT_MISMATCH", "Recipient is not part of this chat")
	case errors.Is(err, service.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "Invalid message")
	case errors.Is(err, envelope.ErrEncryption):
		writeError(w, http.StatusInternalServerError, "ENCRYPTION_FAILURE", "Could not encrypt content")
	case errors.Is(err, envelope.ErrDecryption):
		writeError(w, http.StatusInternalServerError, "DECRYPTION_FAILURE", "Could not decrypt content")
	default:
		log.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
