package types

// Workspace is one project directory under the configured workspace root.
type Workspace struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
