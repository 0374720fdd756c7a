package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"lichka/internal/api"
	"lichka/internal/auth"
	"lichka/internal/delivery"
	"lichka/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
	log    *slog.Logger
}

func NewAPIServer(verifier *auth.Verifier, hub *ws.Hub, router *delivery.Router, log *slog.Logger, addr string) *APIServer {
	if addr == "" {
		addr = ":4002"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: newMux(verifier, hub, router, log),
		},
		log: log,
	}
}

func newMux(verifier *auth.Verifier, hub *ws.Hub, router *delivery.Router, log *slog.Logger) *http.ServeMux {
	wsServer := ws.NewServer(verifier, hub, log)
	apiHandlers := api.New(verifier, router, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/messages/conversations", apiHandlers.RequireAuth(apiHandlers.ConversationsHandler))
	mux.HandleFunc("GET /api/messages/conversation/{userId}", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/messages/send", apiHandlers.RequireAuth(apiHandlers.SendHandler))
	mux.HandleFunc("PUT /api/messages/read/{userId}", apiHandlers.RequireAuth(apiHandlers.MarkReadHandler))
	mux.HandleFunc("DELETE /api/messages/{id}", apiHandlers.RequireAuth(apiHandlers.DeleteMessageHandler))
	mux.HandleFunc("GET /api/messages/unread/count", apiHandlers.RequireAuth(apiHandlers.UnreadCountHandler))

	// WebSocket endpoint; authenticated in the handshake. The method is
	// explicit: an upgrade handshake is always a GET, and a method-less
	// pattern here would conflict with the DELETE wildcard above.
	mux.HandleFunc("GET /api/messages/socket", wsServer.HandleConnections)

	return mux
}

func (s *APIServer) Start() error {
	s.log.Info("message service started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
