package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: "9100"
ollama:
  host: http://gpu-box:11434
  api_key: secret
  default_model: qwen2.5-coder:32b
context_window: 10
cloud: true
log:
  level: debug
`

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, "8000", cfg.Server.Port)
	require.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	require.Equal(t, "llama3.1:8b", cfg.Ollama.DefaultModel)
	require.Equal(t, 20, cfg.ContextWindow)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.Cloud)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, "9100", cfg.Server.Port)
	require.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	require.Equal(t, "secret", cfg.Ollama.APIKey)
	require.Equal(t, "qwen2.5-coder:32b", cfg.Ollama.DefaultModel)
	require.Equal(t, 10, cfg.ContextWindow)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Cloud)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OLLAMA_HOST", "http://10.0.0.5:11434")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:11434", cfg.Ollama.Host)
}
