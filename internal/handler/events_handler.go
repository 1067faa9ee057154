package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"navdir/internal/middleware"
	"navdir/internal/observability"
	ws "navdir/internal/websocket"

	"github.com/gorilla/websocket"
)

// EventsHandler upgrades signed-in admins to a websocket that receives a
// message after every config write.
type EventsHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewEventsHandler creates the handler. Browser origins must be in
// allowedOrigins or match the request host.
func NewEventsHandler(hub *ws.Hub, allowedOrigins []string) *EventsHandler {
	h := &EventsHandler{hub: hub}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowedOrigins)
		},
	}
	return h
}

// HandleConnection handles WebSocket upgrade and connection. Mount it behind
// middleware.RequireAdmin.
func (h *EventsHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	// The request context ends when this handler returns.
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, username)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
