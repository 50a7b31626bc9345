// Package config loads the service configuration from a YAML file, resolving
// ${ENV_VAR} references against the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendDropbox = "dropbox"
	BackendLocal   = "local"
)

type DropboxConfig struct {
	AccessToken string `yaml:"access_token"`
	RootFolder  string `yaml:"root_folder"`
}

type StorageConfig struct {
	// Backend selects the storage implementation: dropbox (default) or local.
	Backend string `yaml:"backend"`
	// LocalRoot is the root directory for the local backend.
	LocalRoot string `yaml:"local_root"`
}

type TranscriptionConfig struct {
	Service string `yaml:"service"`
	APIKey  string `yaml:"api_key"`
}

type LLMConfig struct {
	Service string `yaml:"service"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type ProcessingConfig struct {
	CompressAudio      bool   `yaml:"compress_audio"`
	CompressionQuality string `yaml:"compression_quality"`
	MaxFileSizeMB      int    `yaml:"max_file_size_mb"`
	PollingInterval    int    `yaml:"polling_interval"`
	ErrorRetryInterval int    `yaml:"error_retry_interval"`
	LedgerEnabled      bool   `yaml:"ledger_enabled"`
	LedgerPath         string `yaml:"ledger_path"`
}

type CollaboratorResilience struct {
	MaxRetries             int     `yaml:"max_retries"`
	BaseDelaySeconds       float64 `yaml:"base_delay_seconds"`
	BackoffFactor          float64 `yaml:"backoff_factor"`
	FailureThreshold       int     `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int     `yaml:"recovery_timeout_seconds"`
}

// BaseDelay returns the configured delay as a duration.
func (c CollaboratorResilience) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds * float64(time.Second))
}

// RecoveryTimeout returns the configured recovery window as a duration.
func (c CollaboratorResilience) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}

type ResilienceConfig struct {
	Transcription CollaboratorResilience `yaml:"transcription"`
	LLM           CollaboratorResilience `yaml:"llm"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Dropbox       DropboxConfig       `yaml:"dropbox"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Server        ServerConfig        `yaml:"server"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the configuration file. When path is empty the RAMBLE_CONFIG
// environment variable is consulted, falling back to config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RAMBLE_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved, err := resolveEnvRefs(raw)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(resolved, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveEnvRefs substitutes every ${VAR} reference, erroring when a
// referenced variable is unset.
func resolveEnvRefs(raw []byte) ([]byte, error) {
	var missing []string
	out := envRefPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := string(envRefPattern.FindSubmatch(m)[1])
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return []byte(val)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("environment variable %s not found", missing[0])
	}
	return out, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendDropbox,
		},
		Transcription: TranscriptionConfig{
			Service: "assemblyai",
		},
		LLM: LLMConfig{
			Service: "openai",
		},
		Processing: ProcessingConfig{
			CompressAudio:      true,
			CompressionQuality: "medium",
			MaxFileSizeMB:      200,
			PollingInterval:    60,
			ErrorRetryInterval: 60,
		},
		Resilience: ResilienceConfig{
			Transcription: CollaboratorResilience{
				MaxRetries:             3,
				BaseDelaySeconds:       2.0,
				BackoffFactor:          2.0,
				FailureThreshold:       5,
				RecoveryTimeoutSeconds: 300,
			},
			LLM: CollaboratorResilience{
				MaxRetries:             2,
				BaseDelaySeconds:       2.0,
				BackoffFactor:          2.0,
				FailureThreshold:       3,
				RecoveryTimeoutSeconds: 180,
			},
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendDropbox:
		if c.Dropbox.AccessToken == "" {
			return fmt.Errorf("dropbox.access_token is required for the dropbox backend")
		}
		if c.Dropbox.RootFolder == "" {
			return fmt.Errorf("dropbox.root_folder is required for the dropbox backend")
		}
	case BackendLocal:
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	if c.Transcription.APIKey == "" {
		return fmt.Errorf("transcription.api_key is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Processing.PollingInterval <= 0 {
		return fmt.Errorf("processing.polling_interval must be positive")
	}
	return nil
}
