// Package config provides configuration types for Critic.
package config

// Config represents the main Critic configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Local    LocalConfig    `toml:"local"`
	Cloud    CloudConfig    `toml:"cloud"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig configures the HTTP service exposing the cloud endpoints.
type ServerConfig struct {
	Addr                string   `toml:"addr"`
	AllowedOrigins      []string `toml:"allowed_origins"`
	MaxBodyMB           int      `toml:"max_body_mb"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

// LocalConfig configures the on-device model.
type LocalConfig struct {
	Provider            string `toml:"provider"` // ollama, none
	Endpoint            string `toml:"endpoint"`
	Model               string `toml:"model"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
}

// CloudConfig configures the cloud model used by the service.
type CloudConfig struct {
	Provider       string  `toml:"provider"` // gemini, openrouter, glm
	Model          string  `toml:"model"`    // empty uses the provider default
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxRetries     int     `toml:"max_retries"`
	MonthlyBudget  float64 `toml:"monthly_budget"`
	// Fallbacks are tried in order when the primary provider fails.
	// Their keys come from the provider's environment variable.
	Fallbacks []string `toml:"fallbacks"`
}

// DispatchConfig configures the hybrid dispatcher.
type DispatchConfig struct {
	// RemoteURL is the base URL of a running critic server. Empty means the
	// cloud operations run in-process.
	RemoteURL            string `toml:"remote_url"`
	LocalTimeoutSeconds  int    `toml:"local_timeout_seconds"`
	RemoteTimeoutSeconds int    `toml:"remote_timeout_seconds"`
	SkipLocalForImages   bool   `toml:"skip_local_for_images"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `toml:"level"` // debug, info, warn, error
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	JSON       bool   `toml:"json"`
}

// LocalProvider names an on-device backend.
type LocalProvider string

const (
	LocalProviderOllama LocalProvider = "ollama"
	LocalProviderNone   LocalProvider = "none"
)

// CloudProvider names a cloud model backend.
type CloudProvider string

const (
	CloudProviderGemini     CloudProvider = "gemini"
	CloudProviderOpenRouter CloudProvider = "openrouter"
	CloudProviderGLM        CloudProvider = "glm"
)

// KeyEnv returns the environment variable holding the provider's API key.
func (p CloudProvider) KeyEnv() string {
	switch p {
	case CloudProviderGemini:
		return "GEMINI_API_KEY"
	case CloudProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case CloudProviderGLM:
		return "GLM_API_KEY"
	}
	return ""
}
