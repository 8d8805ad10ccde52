package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/gateway"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// CreateSessionRequest represents the request body for creating a session.
// The session id is supplied by the caller so it can reference the session
// before the call returns.
type CreateSessionRequest struct {
	SessionID string `json:"sessionID"`
	Workspace string `json:"workspace,omitempty"`
	Prompt    string `json:"prompt"`
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.gateway.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Ensure we return an empty array [] instead of null
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID is required")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	sess, err := s.registry.CreateSession(r.Context(), req.SessionID, req.Workspace, req.Prompt)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.gateway.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// updateSession handles PATCH /session/{sessionID}. Recognized fields:
// archived (the toggle is orthogonal to status), hasUnread, title.
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	sess, err := s.gateway.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	if archived, ok := updates["archived"].(bool); ok {
		sess.Archived = archived
	}
	if hasUnread, ok := updates["hasUnread"].(bool); ok {
		sess.HasUnread = hasUnread
	}
	if title, ok := updates["title"].(string); ok && title != "" {
		sess.Title = title
	}
	sess.Time.Updated = time.Now().UnixMilli()

	if err := s.gateway.UpdateSession(r.Context(), sess); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.bus.Publish(event.Event{
		Type:       event.SessionUpdated,
		SessionID:  sessionID,
		Properties: event.SessionData{Session: sess},
	})
	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /session/{sessionID}. Messages and snapshots
// are deleted with the session.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.gateway.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	s.registry.StopSession(sessionID)
	if err := s.gateway.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.bus.Publish(event.Event{
		Type:       event.SessionDeleted,
		SessionID:  sessionID,
		Properties: event.SessionData{Session: sess},
	})
	writeSuccess(w)
}

// getMessages handles GET /session/{sessionID}/message
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.gateway.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	messages, err := s.gateway.ListMessages(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// sendMessage handles POST /session/{sessionID}/message. The user message is
// durable when this returns; the assistant's turn streams over /event.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content is required")
		return
	}

	msg, err := s.registry.SendMessage(r.Context(), sessionID, req.Content)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// abortSession handles POST /session/{sessionID}/abort
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.registry.AbortSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// stopSession handles POST /session/{sessionID}/stop
func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	s.registry.StopSession(chi.URLParam(r, "sessionID"))
	writeSuccess(w)
}

// SetViewedRequest represents the request body for POST /session/view. An
// empty sessionID clears the viewed session.
type SetViewedRequest struct {
	SessionID string `json:"sessionID"`
}

// setViewedSession handles POST /session/view
func (s *Server) setViewedSession(w http.ResponseWriter, r *http.Request) {
	var req SetViewedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	s.registry.SetViewedSession(req.SessionID)
	writeSuccess(w)
}

// regenerateTitle handles POST /session/{sessionID}/title
func (s *Server) regenerateTitle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	title, err := s.registry.RegenerateTitle(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// getDiff handles GET /session/{sessionID}/diff?messageID=...&path=...
func (s *Server) getDiff(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messageID := r.URL.Query().Get("messageID")
	path := r.URL.Query().Get("path")
	if messageID == "" || path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "messageID and path are required")
		return
	}

	diff, err := s.gateway.FileDiff(r.Context(), sessionID, messageID, path)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}
