package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const minimalLocalConfig = `
storage:
  backend: local
  local_root: /tmp/ramble-root
transcription:
  api_key: tk
llm:
  api_key: lk
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalLocalConfig))
	require.NoError(t, err)

	assert.Equal(t, "assemblyai", cfg.Transcription.Service)
	assert.Equal(t, "openai", cfg.LLM.Service)
	assert.True(t, cfg.Processing.CompressAudio)
	assert.Equal(t, "medium", cfg.Processing.CompressionQuality)
	assert.Equal(t, 60, cfg.Processing.PollingInterval)
	assert.Equal(t, 60, cfg.Processing.ErrorRetryInterval)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	assert.Equal(t, 3, cfg.Resilience.Transcription.MaxRetries)
	assert.Equal(t, 5, cfg.Resilience.Transcription.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Resilience.Transcription.RecoveryTimeout())
	assert.Equal(t, 2, cfg.Resilience.LLM.MaxRetries)
	assert.Equal(t, 3, cfg.Resilience.LLM.FailureThreshold)
	assert.Equal(t, 3*time.Minute, cfg.Resilience.LLM.RecoveryTimeout())
	assert.Equal(t, 2*time.Second, cfg.Resilience.LLM.BaseDelay())
}

func TestLoad_ResolvesEnvRefs(t *testing.T) {
	t.Setenv("TEST_DROPBOX_TOKEN", "sl.secret")
	cfg, err := Load(writeConfig(t, `
dropbox:
  access_token: ${TEST_DROPBOX_TOKEN}
  root_folder: /Ramble
transcription:
  api_key: tk
llm:
  api_key: lk
`))
	require.NoError(t, err)
	assert.Equal(t, "sl.secret", cfg.Dropbox.AccessToken)
	assert.Equal(t, BackendDropbox, cfg.Storage.Backend)
}

func TestLoad_MissingEnvRefFails(t *testing.T) {
	_, err := Load(writeConfig(t, `
dropbox:
  access_token: ${RAMBLE_TEST_UNSET_VAR}
  root_folder: /Ramble
transcription:
  api_key: tk
llm:
  api_key: lk
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAMBLE_TEST_UNSET_VAR")
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalLocalConfig+`
processing:
  compress_audio: false
  polling_interval: 5
resilience:
  transcription:
    max_retries: 1
    base_delay_seconds: 0.5
`))
	require.NoError(t, err)

	assert.False(t, cfg.Processing.CompressAudio)
	assert.Equal(t, 5, cfg.Processing.PollingInterval)
	assert.Equal(t, 1, cfg.Resilience.Transcription.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.Transcription.BaseDelay())
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "dropbox backend needs a token",
			yaml: `
dropbox:
  root_folder: /Ramble
transcription:
  api_key: tk
llm:
  api_key: lk
`,
			wantErr: "dropbox.access_token",
		},
		{
			name: "local backend needs a root",
			yaml: `
storage:
  backend: local
transcription:
  api_key: tk
llm:
  api_key: lk
`,
			wantErr: "storage.local_root",
		},
		{
			name: "unknown backend",
			yaml: `
storage:
  backend: carrier-pigeon
transcription:
  api_key: tk
llm:
  api_key: lk
`,
			wantErr: "unsupported storage backend",
		},
		{
			name:    "missing transcription key",
			yaml:    "storage:\n  backend: local\n  local_root: /tmp/r\nllm:\n  api_key: lk\n",
			wantErr: "transcription.api_key",
		},
		{
			name:    "missing llm key",
			yaml:    "storage:\n  backend: local\n  local_root: /tmp/r\ntranscription:\n  api_key: tk\n",
			wantErr: "llm.api_key",
		},
		{
			name:    "zero polling interval",
			yaml:    minimalLocalConfig + "processing:\n  polling_interval: 0\n",
			wantErr: "polling_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
