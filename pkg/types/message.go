package types

// Message is one entry in a session's durable conversation log. Messages are
// append-only once finalized; the in-flight assistant message lives in the
// stream accumulator until turn end and is represented here only by its
// pre-created placeholder row.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionID"`
	Role        string       `json:"role"` // "user" | "assistant" | "system"
	Content     string       `json:"content"`
	Thinking    *string      `json:"thinking,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	FileChanges []FileChange `json:"fileChanges,omitempty"`
	Time        MessageTime  `json:"time"`
}

// MessageTime contains timestamps for a message, in Unix milliseconds.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ToolCallStatus describes the state of a single tool invocation.
type ToolCallStatus string

const (
	ToolPending   ToolCallStatus = "pending"
	ToolRunning   ToolCallStatus = "running"
	ToolCompleted ToolCallStatus = "completed"
	ToolError     ToolCallStatus = "error"
)

// ToolCall records one tool invocation made by the agent during a turn.
// Result is opaque to the orchestrator and set exactly once when the
// tool-call-result event arrives.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Status    ToolCallStatus `json:"status"`
}

// FileChangeType classifies a file change inferred from a tool result.
type FileChangeType string

const (
	FileCreated  FileChangeType = "created"
	FileModified FileChangeType = "modified"
	FileDeleted  FileChangeType = "deleted"
)

// FileChange records one file mutation observed during a turn. OldContent is
// nil for created files and NewContent is nil for deleted files.
type FileChange struct {
	Path       string         `json:"path"`
	Type       FileChangeType `json:"type"`
	OldContent *string        `json:"oldContent,omitempty"`
	NewContent *string        `json:"newContent,omitempty"`
}
