package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hle.yaml")
	t.Setenv("HLE_TRACE_DIR", "/var/lib/hle")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
services:
  enabled: ["appletOE", "caps:su"]
display:
  max_layers: 3
trace:
  path: ${HLE_TRACE_DIR}/trace.db
api:
  listen: 127.0.0.1:7070
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"appletOE", "caps:su"}, cfg.Services.Enabled)
	assert.Equal(t, 3, cfg.Display.MaxLayers)
	assert.Equal(t, "/var/lib/hle/trace.db", cfg.Trace.Path)
	assert.Equal(t, "127.0.0.1:7070", cfg.API.Listen)

	// unset keys fall back to defaults
	assert.Equal(t, Default().Kernel.MaxHandles, cfg.Kernel.MaxHandles)
	assert.Equal(t, Default().IPC.ResponseCapacity, cfg.IPC.ResponseCapacity)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParse_UndefinedVariableIsKept(t *testing.T) {
	cfg, err := Parse([]byte("trace:\n  path: ${HLE_SURELY_UNSET_VARIABLE}/t.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "${HLE_SURELY_UNSET_VARIABLE}/t.db", cfg.Trace.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"negative layers", "display:\n  max_layers: -1\n"},
		{"huge response", "ipc:\n  response_capacity: 1000000\n"},
		{"too much memory", "bridge:\n  memory_limit_pages: 70000\n"},
		{"duplicate service", "services:\n  enabled: [dispdrv, dispdrv]\n"},
		{"malformed yaml", "log: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	assert.Contains(t, Default().String(), "max_layers: 64")
}
