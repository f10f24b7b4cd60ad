package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/folioworks/mailroom/internal/auth"
	ws "github.com/folioworks/mailroom/internal/websocket"
)

// WSHandler upgrades admin dashboard connections to WebSocket and registers
// them with the hub for new-mail notifications.
type WSHandler struct {
	hub      *ws.Hub
	apiToken string
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler instance.
func NewWSHandler(hub *ws.Hub, apiToken string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		apiToken: apiToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve authenticates and upgrades the connection. Browsers cannot set an
// Authorization header on a WebSocket handshake, so the token is also
// accepted as a query parameter.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if !auth.TokenMatches(h.apiToken, token) {
		WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WSHandler: Failed to upgrade connection: %v", err)
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		return
	}

	go h.readLoop(client)
}

// readLoop drains incoming frames so control messages are processed, and
// unregisters the client when the connection drops. Clients never send
// application data.
func (h *WSHandler) readLoop(client *ws.Client) {
	defer h.hub.Unregister(client)

	for {
		if _, _, err := client.Conn().ReadMessage(); err != nil {
			return
		}
	}
}
