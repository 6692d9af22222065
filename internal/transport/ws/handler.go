package ws

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"nhooyr.io/websocket"

	"github.com/vedran77/sprout/internal/logger"
)

type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type Handler struct {
	registry       *Registry
	router         *Router
	tokens         TokenVerifier
	log            *logger.Logger
	originPatterns []string
}

// NewHandler returns the /ws endpoint. originPatterns follow
// websocket.AcceptOptions; "*" accepts any origin.
func NewHandler(registry *Registry, router *Router, tokens TokenVerifier, originPatterns []string, log *logger.Logger) *Handler {
	return &Handler{
		registry:       registry,
		router:         router,
		tokens:         tokens,
		log:            log.With("component", "ws_handler"),
		originPatterns: originPatterns,
	}
}

// ServeHTTP upgrades GET /ws?user_id=&chat_id=&token= to a WebSocket.
// Auth is done via query params (browsers can't send headers on upgrade).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userParam, chatParam, token := q.Get("user_id"), q.Get("chat_id"), q.Get("token")
	if userParam == "" || chatParam == "" || token == "" {
		writeHTTPError(w, http.StatusBadRequest, "MISSING_PARAMS", "user_id, chat_id and token are required")
		return
	}

	userID, err := strconv.ParseInt(userParam, 10, 64)
	if err != nil || userID <= 0 {
		writeHTTPError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user_id")
		return
	}
	chatID, err := strconv.ParseInt(chatParam, 10, 64)
	if err != nil || chatID <= 0 {
		writeHTTPError(w, http.StatusBadRequest, "INVALID_ID", "Invalid chat_id")
		return
	}

	subject, err := h.tokens.Verify(token)
	if err != nil || subject != userID {
		writeHTTPError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if slices.Contains(h.originPatterns, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Warn("ws: accept error", "error", err)
		return
	}

	client := NewClient(conn, userID, chatID, h.log)
	res := h.registry.Register(userID, client)
	if !res.Accepted {
		h.log.Warn("ws: rejecting connection", "user_id", userID, "count", res.Count, "error", ErrConnectionRejected)
		conn.Close(websocket.StatusPolicyViolation, reasonTooMany)
		return
	}
	client.log.Info("ws: connected", "count", res.Count)

	go client.WritePump()
	client.ReadPump(r.Context(),
		func() { h.registry.Touch(userID, client) },
		func(data []byte) { h.router.Route(r.Context(), client, userID, data) },
	)

	h.registry.Deregister(userID, client)
	client.log.Info("ws: disconnected", "remaining", h.registry.Count(userID))
}

func writeHTTPError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
