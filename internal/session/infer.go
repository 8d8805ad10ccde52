package session

import (
	"strings"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// File-change inference inspects completed tool calls and best-effort derives
// a FileChange record from the tool's name and arguments. Tool vocabularies
// differ between agents, so both the verb match and the argument keys are
// lookup tables rather than a fixed schema. Unrecognized shapes produce no
// record, never an error.

// changeRule maps tool-name verbs to a change type. Rules are evaluated in
// order and the first verb found as a substring of the lowercased tool name
// wins.
type changeRule struct {
	verbs []string
	typ   types.FileChangeType
}

var changeRules = []changeRule{
	{verbs: []string{"create", "write"}, typ: types.FileCreated},
	{verbs: []string{"edit", "replace", "patch"}, typ: types.FileModified},
	{verbs: []string{"delete", "remove"}, typ: types.FileDeleted},
}

// Candidate argument keys per logical field, checked in order; the first key
// present in the arguments wins.
var (
	pathKeys       = []string{"path", "file_path", "filePath", "filename", "file"}
	newContentKeys = []string{"content", "new_content", "newContent", "new_string", "text"}
	oldContentKeys = []string{"old_content", "oldContent", "old_string", "original"}
)

// inferFileChange derives a FileChange from a completed tool call, or reports
// false when the tool does not look like a file mutation.
func inferFileChange(toolName string, args map[string]any) (types.FileChange, bool) {
	typ, ok := classifyTool(toolName)
	if !ok {
		return types.FileChange{}, false
	}

	path, ok := stringArg(args, pathKeys)
	if !ok || path == "" {
		return types.FileChange{}, false
	}

	change := types.FileChange{Path: path, Type: typ}
	switch typ {
	case types.FileCreated:
		if v, ok := stringArg(args, newContentKeys); ok {
			change.NewContent = &v
		}
	case types.FileModified:
		if v, ok := stringArg(args, oldContentKeys); ok {
			change.OldContent = &v
		}
		if v, ok := stringArg(args, newContentKeys); ok {
			change.NewContent = &v
		}
	case types.FileDeleted:
		if v, ok := stringArg(args, oldContentKeys); ok {
			change.OldContent = &v
		}
	}
	return change, true
}

func classifyTool(name string) (types.FileChangeType, bool) {
	lowered := strings.ToLower(name)
	for _, rule := range changeRules {
		for _, verb := range rule.verbs {
			if strings.Contains(lowered, verb) {
				return rule.typ, true
			}
		}
	}
	return "", false
}

// stringArg returns the first candidate key present in args with a string
// value.
func stringArg(args map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
