package event

import (
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// Type identifies an event on the bus. Stream events carry the session they
// belong to in Event.SessionID.
type Type string

const (
	SessionCreated Type = "session-created"
	SessionUpdated Type = "session-updated"
	SessionDeleted Type = "session-deleted"
	ThinkingDelta  Type = "thinking-delta"
	TextDelta      Type = "text-delta"
	ToolCallStart  Type = "tool-call-start"
	ToolCallResult Type = "tool-call-result"
	TurnDone       Type = "turn-done"
	TurnError      Type = "turn-error"
	TitleUpdated   Type = "title-updated"
)

// SessionData is the payload for session-created/updated/deleted events.
type SessionData struct {
	Session *types.Session `json:"session"`
}

// DeltaData is the payload for thinking-delta and text-delta events.
type DeltaData struct {
	Content string `json:"content"`
}

// ToolCallStartData is the payload for tool-call-start events.
type ToolCallStartData struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResultData is the payload for tool-call-result events.
type ToolCallResultData struct {
	ToolCallID string `json:"toolCallID"`
	Result     any    `json:"result,omitempty"`
}

// TurnDoneData is the payload emitted when a turn finalizes. An aborted turn
// never finalizes, so turn-done always describes a completed turn.
type TurnDoneData struct {
	MessageID   string             `json:"messageID"`
	Thinking    *string            `json:"thinking,omitempty"`
	Content     string             `json:"content"`
	ToolCalls   []types.ToolCall   `json:"toolCalls,omitempty"`
	FileChanges []types.FileChange `json:"fileChanges,omitempty"`
}

// TurnErrorData is the payload emitted when a turn fails.
type TurnErrorData struct {
	Error string `json:"error"`
}

// TitleUpdatedData is the payload emitted when a session title changes.
type TitleUpdatedData struct {
	Title string `json:"title"`
}
