package handlers

import (
	"net/http"
)

// Routes builds the public mux. auth wraps every /api route.
func Routes(chats *ChatHandler, stories *StoryHandler, ws http.Handler, auth func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", Health)
	// WebSocket authenticates with its own query token.
	mux.Handle("GET /ws", ws)

	// Protected - Chats
	mux.Handle("GET /api/v1/chats", auth(http.HandlerFunc(chats.ListChats)))
	mux.Handle("POST /api/v1/chats", auth(http.HandlerFunc(chats.GetOrCreateChat)))
	mux.Handle("GET /api/v1/chats/{id}/messages", auth(http.HandlerFunc(chats.ListMessages)))
	mux.Handle("POST /api/v1/chats/{id}/messages", auth(http.HandlerFunc(chats.SendMessage)))

	// Protected - Stories
	mux.Handle("POST /api/v1/stories", auth(http.HandlerFunc(stories.Create)))
	mux.Handle("GET /api/v1/stories/{id}", auth(http.HandlerFunc(stories.Get)))

	return mux
}
