package ws

import (
	"context"
	"errors"
	"log/slog"

	"lichka/internal/delivery"
	"lichka/internal/models"
	"lichka/internal/presence"
)

const sessionBuffer = 100

// Hub binds authenticated sessions to the presence registry and routes
// client events into the delivery router. Presence transitions are
// broadcast to every connected peer.
type Hub struct {
	registry *presence.Registry
	router   *delivery.Router
	log      *slog.Logger
}

func NewHub(registry *presence.Registry, router *delivery.Router, log *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		router:   router,
		log:      log,
	}
}

// Join registers a fresh session for userID and announces it. The new
// handle replaces any previous session for the same user; the old
// connection keeps draining until its own disconnect, which the
// registry's conditional removal then ignores.
func (h *Hub) Join(userID string) presence.Handle {
	handle := make(presence.Handle, sessionBuffer)
	_, replaced := h.registry.Register(userID, handle)
	if replaced {
		h.log.Info("session replaced", "user_id", userID)
	}

	h.broadcast(models.ServerEvent{Type: models.ServerEventUserOnline, UserID: userID})
	return handle
}

// Leave unregisters the session. If the handle was already superseded by
// a reconnect nothing is removed and no offline event goes out.
func (h *Hub) Leave(userID string, handle presence.Handle) {
	if !h.registry.Unregister(userID, handle) {
		return
	}
	h.broadcast(models.ServerEvent{Type: models.ServerEventUserOffline, UserID: userID})
}

// Dispatch routes one client event. session is the handle of the
// connection that sent the event: confirmations and errors go back to
// that exact session, even when a newer connection has since replaced
// it in the registry. The receiver never learns a send was attempted.
func (h *Hub) Dispatch(ctx context.Context, userID string, session presence.Handle, ev models.ClientEvent) {
	switch ev.Type {
	case models.ClientEventSendMessage:
		if _, err := h.router.Send(ctx, userID, ev.ReceiverID, ev.Content, ev.TempID, session); err != nil {
			h.log.Warn("send failed", "user_id", userID, "error", err)
			h.pushError(session, err)
		}
	case models.ClientEventMarkRead:
		if _, err := h.router.MarkRead(ctx, userID, ev.SenderID); err != nil {
			h.pushError(session, err)
		}
	case models.ClientEventTyping:
		h.router.Typing(userID, ev.ReceiverID, false)
	case models.ClientEventStopTyping:
		h.router.Typing(userID, ev.ReceiverID, true)
	default:
		h.log.Debug("unknown client event", "user_id", userID, "type", ev.Type)
	}
}

func (h *Hub) pushError(session presence.Handle, err error) {
	if session == nil {
		return
	}
	msg := "Failed to send message"
	if errors.Is(err, models.ErrValidation) {
		msg = err.Error()
	}
	select {
	case session <- models.ServerEvent{Type: models.ServerEventMessageError, Error: msg}:
	default:
	}
}

func (h *Hub) broadcast(ev models.ServerEvent) {
	for _, handle := range h.registry.Handles() {
		select {
		case handle <- ev:
		default:
			// Slow consumer; presence events are droppable.
		}
	}
}
