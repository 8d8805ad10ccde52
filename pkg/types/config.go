package types

// Config is the application configuration, merged from JSONC files and
// environment variables. See internal/config for load order.
type Config struct {
	// WorkspaceRoot is the directory under which project workspaces live.
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`
	// WorkspaceScanDepth bounds how deep workspace metadata discovery looks
	// for readme/instruction files. Zero means the default depth.
	WorkspaceScanDepth int `json:"workspaceScanDepth,omitempty"`
	// Agent configures the external agent process.
	Agent AgentConfig `json:"agent,omitempty"`
}

// AgentConfig describes how to reach the external code-generating agent.
type AgentConfig struct {
	// Command is the agent executable. Args are passed verbatim.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	// InitTimeoutSeconds bounds adapter initialization. Zero means the
	// default of 30 seconds.
	InitTimeoutSeconds int `json:"initTimeoutSeconds,omitempty"`
}
