package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lichka/internal/auth"
	"lichka/internal/delivery"
	"lichka/internal/models"
	"lichka/internal/ws"
)

type API struct {
	verifier *auth.Verifier
	router   *delivery.Router
	log      *slog.Logger
}

func New(verifier *auth.Verifier, router *delivery.Router, log *slog.Logger) *API {
	return &API{verifier: verifier, router: router, log: log}
}

type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth verifies the bearer credential and injects the caller's
// userId into the request context. Same token transports as the socket
// handshake.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.verifier.Verify(ws.HandshakeToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, identity.UserID)))
	}
}

func requesterID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "not authorized")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ConversationsHandler returns the requester's inbox, newest first.
func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.router.ListConversations(r.Context(), requesterID(r))
	if err != nil {
		a.log.Error("failed to list conversations", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// MessagesHandler returns the history between the requester and the
// user in the path, ascending by creation time.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	otherID := r.PathValue("userId")
	if otherID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	messages, err := a.router.ListMessages(r.Context(), requesterID(r), otherID)
	if err != nil {
		a.log.Error("failed to list messages", "error", err)
		writeDomainError(w, err)
		return
	}
	if messages == nil {
		messages = []models.WireMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// SendHandler is the REST fallback for sending a message. Same
// validation and delivery semantics as the socket path.
func (a *API) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
		TempID     string `json:"tempId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := a.router.Send(r.Context(), requesterID(r), req.ReceiverID, req.Content, req.TempID, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

// MarkReadHandler marks every unread message from the user in the path
// as read and reports how many were affected.
func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	senderID := r.PathValue("userId")
	if senderID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	marked, err := a.router.MarkRead(r.Context(), requesterID(r), senderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"markedAsRead": marked,
	})
}

// DeleteMessageHandler soft-deletes a message for the requester's side.
func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "message id is required")
		return
	}

	if err := a.router.DeleteMessage(r.Context(), id, requesterID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message deleted",
	})
}

// UnreadCountHandler returns the requester's total unread count.
func (a *API) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := a.router.UnreadCount(r.Context(), requesterID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
}
