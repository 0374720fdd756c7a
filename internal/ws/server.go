package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"lichka/internal/auth"
)

// Server upgrades incoming duplex connections after verifying the
// bearer credential carried in the handshake. Verification happens
// exactly once per connection; no per-event re-authentication.
type Server struct {
	verifier *auth.Verifier
	hub      *Hub
	log      *slog.Logger
	upgrader *websocket.Upgrader
}

func NewServer(verifier *auth.Verifier, hub *Hub, log *slog.Logger) *Server {
	return &Server{
		verifier: verifier,
		hub:      hub,
		log:      log,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // same-origin enforcement is the proxy's job
			},
		},
	}
}

// HandshakeToken extracts the bearer credential from a request: the
// token header, an Authorization bearer, or the token query parameter
// (browser WebSocket clients cannot set headers).
func HandshakeToken(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(HandshakeToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	s.log.Info("user connected", "user_id", identity.UserID)

	c := NewConnection(s.hub, conn, identity.UserID)
	if err := c.Handle(r.Context()); err != nil {
		s.log.Debug("connection closed", "user_id", identity.UserID, "error", err)
	}

	s.log.Info("user disconnected", "user_id", identity.UserID)
}
