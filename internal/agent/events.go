package agent

// Kind is the canonical event vocabulary produced by the Normalizer.
type Kind string

const (
	KindThinkingDelta  Kind = "thinking-delta"
	KindTextDelta      Kind = "text-delta"
	KindToolCallStart  Kind = "tool-call-start"
	KindToolCallResult Kind = "tool-call-result"
	KindTurnEnd        Kind = "turn-end"
	KindTurnError      Kind = "turn-error"
)

// Event is one canonical event. Only the fields relevant to Kind are set:
// Content for deltas, the tool fields for tool events, Err for turn errors.
type Event struct {
	Kind       Kind
	Content    string
	ToolCallID string
	ToolName   string
	Arguments  map[string]any
	Result     any
	Err        error
}
