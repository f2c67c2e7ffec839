// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Iteration bounds enforced on every task regardless of entry point.
const (
	MinIterations = 1
	MaxIterations = 20
)

// Config holds the entire application configuration. A single instance is
// built at startup and passed explicitly into each task's construction so
// that concurrent tasks stay independent and testable.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig holds settings for the agent loop itself.
type AgentConfig struct {
	// MaxIterations bounds the loop. Every task terminates within this many
	// turns regardless of what the decision provider proposes.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// UseRealBrowser selects the chromedp executor instead of the simulated
	// in-memory session.
	UseRealBrowser bool `mapstructure:"use_real_browser" yaml:"use_real_browser"`
	// EnableSafetyChecks gates the destructive-action classifier. When false
	// every action is treated as safe.
	EnableSafetyChecks bool `mapstructure:"enable_safety_checks" yaml:"enable_safety_checks"`
	// HistoryLookback is how many recent steps are serialized into the LLM
	// prompt.
	HistoryLookback int `mapstructure:"history_lookback" yaml:"history_lookback"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig defines the configuration for the decision model. An empty APIKey
// means the rule-based fallback provider is selected for every task.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Configured reports whether an API-backed provider can be constructed.
func (l LLMConfig) Configured() bool {
	return l.APIKey != ""
}

// BrowserConfig holds settings for the headless browser sessions.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	// TextExcerptLimit caps the visible-text snippet captured into PageState.
	TextExcerptLimit int `mapstructure:"text_excerpt_limit" yaml:"text_excerpt_limit"`
}

// ServerConfig tunes the REST surface.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// ApprovalTimeout bounds how long a task may sit in AWAITING_APPROVAL
	// before the server resolves the pending approval as a reject.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout" yaml:"approval_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pilot-cli")
	v.SetDefault("logger.log_file", "pilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.max_iterations", 5)
	v.SetDefault("agent.use_real_browser", false)
	v.SetDefault("agent.enable_safety_checks", true)
	v.SetDefault("agent.history_lookback", 10)

	// -- LLM --
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("browser.text_excerpt_limit", 2000)

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.approval_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "PILOT_LLM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations < MinIterations || c.Agent.MaxIterations > MaxIterations {
		return fmt.Errorf("agent.max_iterations must be between %d and %d", MinIterations, MaxIterations)
	}
	if c.Agent.HistoryLookback <= 0 {
		return fmt.Errorf("agent.history_lookback must be a positive integer")
	}
	if c.Browser.TextExcerptLimit <= 0 {
		return fmt.Errorf("browser.text_excerpt_limit must be a positive integer")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port")
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be one of [%s, %s]", ProviderGemini, ProviderAnthropic)
	}
	return nil
}
