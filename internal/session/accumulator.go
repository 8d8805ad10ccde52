package session

import (
	"strings"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// accumulator buffers one in-flight turn for a single session. It is owned by
// an activeSession and mutated in place; nothing here is persisted until the
// turn finalizes. Buffer mutation only, never lifecycle fields.
type accumulator struct {
	thinking    strings.Builder
	content     strings.Builder
	toolCalls   []types.ToolCall
	fileChanges []types.FileChange
}

func (a *accumulator) reset() {
	a.thinking.Reset()
	a.content.Reset()
	a.toolCalls = nil
	a.fileChanges = nil
}

func (a *accumulator) appendThinking(text string) {
	a.thinking.WriteString(text)
}

func (a *accumulator) appendContent(text string) {
	a.content.WriteString(text)
}

// startToolCall records a new tool invocation in running state.
func (a *accumulator) startToolCall(id, name string, args map[string]any) {
	a.toolCalls = append(a.toolCalls, types.ToolCall{
		ID:        id,
		Name:      name,
		Arguments: args,
		Status:    types.ToolRunning,
	})
}

// completeToolCall sets the result on the matching running tool call and marks
// it completed. It returns the completed call so the caller can run
// file-change inference against its name and arguments. Unknown ids return
// nil; late or duplicate results are ignored.
func (a *accumulator) completeToolCall(id string, result any) *types.ToolCall {
	for i := range a.toolCalls {
		if a.toolCalls[i].ID == id {
			a.toolCalls[i].Result = result
			a.toolCalls[i].Status = types.ToolCompleted
			return &a.toolCalls[i]
		}
	}
	return nil
}

func (a *accumulator) addFileChange(change types.FileChange) {
	a.fileChanges = append(a.fileChanges, change)
}

// snapshot copies the buffers into a finalized message shape. The returned
// slices are copies so the accumulator can be reset without aliasing the
// persisted message.
func (a *accumulator) snapshot() (thinking *string, content string, toolCalls []types.ToolCall, fileChanges []types.FileChange) {
	if a.thinking.Len() > 0 {
		t := a.thinking.String()
		thinking = &t
	}
	content = a.content.String()
	toolCalls = append([]types.ToolCall(nil), a.toolCalls...)
	fileChanges = append([]types.FileChange(nil), a.fileChanges...)
	return thinking, content, toolCalls, fileChanges
}
