// Package config handles Critic configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	apperrors "github.com/flynn-ai/critic/internal/errors"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":9002",
			AllowedOrigins:      []string{"http://localhost:9002"},
			MaxBodyMB:           10,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 150,
		},
		Local: LocalConfig{
			Provider:            string(LocalProviderOllama),
			Endpoint:            "http://localhost:11434",
			Model:               "gemma3:1b",
			ProbeTimeoutSeconds: 3,
		},
		Cloud: CloudConfig{
			Provider:       string(CloudProviderGemini),
			TimeoutSeconds: 110,
			MaxRetries:     3,
			MonthlyBudget:  10.0,
		},
		Dispatch: DispatchConfig{
			LocalTimeoutSeconds:  30,
			RemoteTimeoutSeconds: 120,
			SkipLocalForImages:   true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if p := os.Getenv("CRITIC_CONFIG"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".critic", "config.toml")
}

// Load loads the configuration from the given path, then applies
// environment overrides. If the file doesn't exist, defaults are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewBuilder(apperrors.CodeConfigInvalid, "failed to parse config").
				Permanent().
				Wrap(err).
				WithContext("path", configPath).
				Build()
		}
	case os.IsNotExist(err):
		// Config file doesn't exist, keep defaults
	default:
		return nil, err
	}

	cfg.ApplyEnv()
	cfg = expandPaths(cfg)

	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// ApplyEnv overrides config values from environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.Server.Addr, "CRITIC_ADDR")
	setString(&c.Dispatch.RemoteURL, "CRITIC_REMOTE_URL")
	setString(&c.Local.Endpoint, "CRITIC_LOCAL_ENDPOINT")
	setString(&c.Local.Model, "CRITIC_LOCAL_MODEL")
	setString(&c.Cloud.Provider, "CRITIC_CLOUD_PROVIDER")
	setString(&c.Cloud.Model, "CRITIC_CLOUD_MODEL")
	setString(&c.Logging.Level, "CRITIC_LOG_LEVEL")

	// Provider keys only apply when no key was configured explicitly
	if c.Cloud.APIKey == "" {
		if key := CloudProvider(c.Cloud.Provider).KeyEnv(); key != "" {
			setString(&c.Cloud.APIKey, key)
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// expandPaths expands ~ in file paths.
func expandPaths(cfg *Config) *Config {
	homeDir, _ := os.UserHomeDir()

	if cfg.Logging.File != "" && cfg.Logging.File[0] == '~' {
		cfg.Logging.File = filepath.Join(homeDir, cfg.Logging.File[1:])
	}

	return cfg
}

// Validate checks enum values and timeouts.
func (c *Config) Validate() error {
	var problems []string

	switch LocalProvider(c.Local.Provider) {
	case LocalProviderOllama:
		if c.Local.Endpoint == "" {
			problems = append(problems, "local.endpoint is required for the ollama provider")
		}
		if c.Local.Model == "" {
			problems = append(problems, "local.model is required for the ollama provider")
		}
	case LocalProviderNone:
	default:
		problems = append(problems, fmt.Sprintf("local.provider %q must be one of ollama, none", c.Local.Provider))
	}

	switch CloudProvider(c.Cloud.Provider) {
	case CloudProviderGemini, CloudProviderOpenRouter, CloudProviderGLM:
	default:
		problems = append(problems, fmt.Sprintf("cloud.provider %q must be one of gemini, openrouter, glm", c.Cloud.Provider))
	}

	for _, fb := range c.Cloud.Fallbacks {
		if CloudProvider(fb).KeyEnv() == "" {
			problems = append(problems, fmt.Sprintf("cloud.fallbacks entry %q must be one of gemini, openrouter, glm", fb))
		}
	}

	if c.Dispatch.LocalTimeoutSeconds <= 0 {
		problems = append(problems, "dispatch.local_timeout_seconds must be positive")
	}
	if c.Dispatch.RemoteTimeoutSeconds <= 0 {
		problems = append(problems, "dispatch.remote_timeout_seconds must be positive")
	}
	if c.Cloud.TimeoutSeconds <= 0 {
		problems = append(problems, "cloud.timeout_seconds must be positive")
	}
	if c.Server.MaxBodyMB <= 0 {
		problems = append(problems, "server.max_body_mb must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewBuilder(apperrors.CodeConfigInvalid, "invalid configuration").
		Permanent().
		WithDetails(problems...).
		WithSuggestion("Run 'critic config show' to inspect the effective configuration").
		Build()
}

// LocalTimeout returns the dispatcher's local attempt budget.
func (c *Config) LocalTimeout() time.Duration {
	return seconds(c.Dispatch.LocalTimeoutSeconds)
}

// RemoteTimeout returns the dispatcher's cloud call budget.
func (c *Config) RemoteTimeout() time.Duration {
	return seconds(c.Dispatch.RemoteTimeoutSeconds)
}

// CloudTimeout returns the per-request timeout for cloud model calls.
func (c *Config) CloudTimeout() time.Duration {
	return seconds(c.Cloud.TimeoutSeconds)
}

// ProbeTimeout returns the capability probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Local.ProbeTimeoutSeconds)
}

// MaxBodyBytes returns the request body limit for the HTTP service.
func (c *Config) MaxBodyBytes() int64 {
	return int64(c.Server.MaxBodyMB) << 20
}

// IsRemote reports whether cloud operations go to a separate critic server.
func (c *Config) IsRemote() bool {
	return c.Dispatch.RemoteURL != ""
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
