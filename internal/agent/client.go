// Package agent wraps the connection to an external code-generating agent
// process and normalizes its native event stream into the canonical event
// vocabulary consumed by the session registry.
package agent

import "context"

// Raw event types in the agent's native vocabulary.
const (
	RawReady      = "ready"      // connection handshake complete
	RawThinking   = "thinking"   // streamed reasoning delta
	RawTextDelta  = "text_delta" // streamed text delta
	RawText       = "text"       // final non-streamed text block
	RawToolStart  = "tool_start"
	RawToolResult = "tool_result"
	RawTurnEnd    = "turn_end"
	RawError      = "error"
	RawAbortAck   = "abort_ack"
)

// RawEvent is one event in the agent process's native vocabulary, before
// normalization.
type RawEvent struct {
	Type      string         `json:"type"`
	Content   string         `json:"content,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Client is a connection to one external agent process. Implementations
// deliver events by pushing to the callback registered at Connect; the
// Normalizer bridges that push stream into a pull sequence.
type Client interface {
	// Connect establishes the connection and registers the event callback.
	// It blocks until the agent signals readiness or ctx expires. The
	// callback is invoked from the client's read loop until Close.
	Connect(ctx context.Context, onEvent func(RawEvent)) error

	// Prompt starts a new turn with the given user text.
	Prompt(ctx context.Context, text string) error

	// Abort asks the agent to stop the current turn. It returns once the
	// agent acknowledges the abort; the underlying process may keep running
	// (and emitting events) for a while after that.
	Abort(ctx context.Context) error

	// Close releases the connection and any subprocess resources.
	Close() error
}
