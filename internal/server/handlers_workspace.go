package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// CreateWorkspaceRequest represents the request body for creating a workspace.
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// MatchWorkspaceRequest represents the request body for workspace matching.
type MatchWorkspaceRequest struct {
	Prompt string `json:"prompt"`
}

// MatchWorkspaceResponse is the routing result. Workspace is null when no
// tier matched above the confidence threshold.
type MatchWorkspaceResponse struct {
	Workspace       *types.Workspace `json:"workspace"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason"`
	EffectivePrompt string           `json:"effectivePrompt"`
}

// listWorkspaces handles GET /workspace
func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.workspaces.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if workspaces == nil {
		workspaces = []types.Workspace{}
	}
	writeJSON(w, http.StatusOK, workspaces)
}

// createWorkspace handles POST /workspace
func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}

	ws, err := s.workspaces.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// matchWorkspace handles POST /workspace/match
func (s *Server) matchWorkspace(w http.ResponseWriter, r *http.Request) {
	var req MatchWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	match := s.matcher.Resolve(r.Context(), req.Prompt)
	writeJSON(w, http.StatusOK, MatchWorkspaceResponse{
		Workspace:       match.Workspace,
		Confidence:      match.Confidence,
		Reason:          match.Reason,
		EffectivePrompt: match.EffectivePrompt,
	})
}
