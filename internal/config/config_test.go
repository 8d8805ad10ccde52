package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("AGENTDECK_CONFIG", "")
	t.Setenv("AGENTDECK_CONFIG_CONTENT", "")
	t.Setenv("AGENTDECK_WORKSPACE_ROOT", "")
	t.Setenv("AGENTDECK_AGENT_COMMAND", "")
}

func TestLoadProjectConfig(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentdeck.json"), []byte(`{
		"workspaceRoot": "/srv/workspaces",
		"agent": {"command": "codeagent", "args": ["--stream"]}
	}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/workspaces", cfg.WorkspaceRoot)
	assert.Equal(t, "codeagent", cfg.Agent.Command)
	assert.Equal(t, []string{"--stream"}, cfg.Agent.Args)
}

func TestLoadJSONCComments(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentdeck.jsonc"), []byte(`{
		// where projects live
		"workspaceRoot": "/srv/projects",
	}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/projects", cfg.WorkspaceRoot)
}

func TestProjectOverridesGlobal(t *testing.T) {
	isolateEnv(t)
	globalDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "agentdeck")
	require.NoError(t, os.MkdirAll(globalDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "agentdeck.json"), []byte(`{
		"workspaceRoot": "/global/workspaces",
		"workspaceScanDepth": 3
	}`), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentdeck.json"), []byte(`{
		"workspaceRoot": "/project/workspaces"
	}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/project/workspaces", cfg.WorkspaceRoot)
	assert.Equal(t, 3, cfg.WorkspaceScanDepth, "unset project fields keep the global value")
}

func TestEnvInterpolation(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DECK_ROOT", "/env/root")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentdeck.json"),
		[]byte(`{"workspaceRoot": "{env:DECK_ROOT}"}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/env/root", cfg.WorkspaceRoot)
}

func TestConfigFileOverrideEnvVar(t *testing.T) {
	isolateEnv(t)
	override := filepath.Join(t.TempDir(), "override.json")
	require.NoError(t, os.WriteFile(override, []byte(`{"agent": {"command": "other-agent"}}`), 0o644))
	t.Setenv("AGENTDECK_CONFIG", override)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "other-agent", cfg.Agent.Command)
}

func TestEnvOverridesWinOverFiles(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentdeck.json"),
		[]byte(`{"workspaceRoot": "/from/file"}`), 0o644))
	t.Setenv("AGENTDECK_WORKSPACE_ROOT", "/from/env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.WorkspaceRoot)
}

func TestDefaultsWhenNothingConfigured(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(GetPaths().Data, "workspaces"), cfg.WorkspaceRoot)
	assert.Zero(t, cfg.Agent.InitTimeoutSeconds)
}
