// Package types provides the core data types for the agentdeck server.
package types

// SessionStatus describes the lifecycle state of a session's most recent turn.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session represents one long-running conversation with the coding agent.
// A session may be bound to a workspace; an unbound session has nil
// WorkspaceName and WorkspacePath.
type Session struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	WorkspaceName *string       `json:"workspaceName,omitempty"`
	WorkspacePath *string       `json:"workspacePath,omitempty"`
	Logo          *string       `json:"logo,omitempty"`
	Status        SessionStatus `json:"status"`
	// Archived is an independent axis: archiving never changes Status and
	// unarchiving restores exactly what was there before.
	Archived  bool        `json:"archived"`
	HasUnread bool        `json:"hasUnread"`
	Time      SessionTime `json:"time"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}
