package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Server       ServerConfig       `mapstructure:"server"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different phases
type LLMRoutingConfig struct {
	Planning    string `mapstructure:"planning"`    // Use for next-step decisions
	Instruction string `mapstructure:"instruction"` // Use to translate instructions into capability calls
	Synthesis   string `mapstructure:"synthesis"`   // Use to format raw capability output
	Fallback    string `mapstructure:"fallback"`    // Fallback model
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// OrchestratorConfig contains run-loop settings. The iteration ceiling is
// mandatory: a run without one never terminates on a planner that keeps
// delegating.
type OrchestratorConfig struct {
	IterationCeiling  int           `mapstructure:"iteration_ceiling"`
	StepTimeout       time.Duration `mapstructure:"step_timeout"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
}

// CapabilitiesConfig contains settings for the two specialist capabilities
type CapabilitiesConfig struct {
	SigningSecret string          `mapstructure:"signing_secret"`
	WebSearch     WebSearchConfig `mapstructure:"web_search"`
	Google        GoogleConfig    `mapstructure:"google"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GoogleConfig points at the wrapper servers exposing Calendar and Gmail
type GoogleConfig struct {
	CalendarURL string        `mapstructure:"calendar_url"`
	GmailURL    string        `mapstructure:"gmail_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("masystem")
		viper.SetConfigType("json")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("MAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover the common case
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("llm.routing.planning", "gpt-4o")
	viper.SetDefault("llm.routing.instruction", "gpt-4o-mini")
	viper.SetDefault("llm.routing.synthesis", "gpt-4o")
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	viper.SetDefault("orchestrator.iteration_ceiling", 10)
	viper.SetDefault("orchestrator.step_timeout", "2m")
	viper.SetDefault("orchestrator.max_concurrent_runs", 5)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)

	viper.SetDefault("capabilities.signing_secret", "masystem-local-secret")
	viper.SetDefault("capabilities.web_search.provider", "brave")
	viper.SetDefault("capabilities.web_search.max_results", 5)
	viper.SetDefault("capabilities.web_search.timeout", "30s")
	viper.SetDefault("capabilities.google.calendar_url", "http://localhost:8001")
	viper.SetDefault("capabilities.google.gmail_url", "http://localhost:8000")
	viper.SetDefault("capabilities.google.timeout", "30s")

	viper.SetDefault("server.addr", ":10002")
}

// overrideFromEnv overrides configuration with environment variables
// for secrets and deployment-specific endpoints
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		viper.Set("capabilities.web_search.brave_api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		viper.Set("capabilities.web_search.serper_api_key", apiKey)
	}
	if url := os.Getenv("GOOGLE_CALENDAR_URL"); url != "" {
		viper.Set("capabilities.google.calendar_url", url)
	}
	if url := os.Getenv("GOOGLE_GMAIL_URL"); url != "" {
		viper.Set("capabilities.google.gmail_url", url)
	}
	if secret := os.Getenv("CAPABILITY_SIGNING_SECRET"); secret != "" {
		viper.Set("capabilities.signing_secret", secret)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Orchestrator.IterationCeiling <= 0 {
		return fmt.Errorf("orchestrator.iteration_ceiling must be positive, got %d", config.Orchestrator.IterationCeiling)
	}
	if config.Orchestrator.StepTimeout <= 0 {
		return fmt.Errorf("orchestrator.step_timeout must be positive")
	}
	if config.Orchestrator.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent_runs must be positive")
	}

	if config.Capabilities.SigningSecret == "" {
		return fmt.Errorf("capabilities.signing_secret must be set")
	}

	switch config.Capabilities.WebSearch.Provider {
	case "brave", "serper":
	default:
		return fmt.Errorf("unsupported web search provider: %s", config.Capabilities.WebSearch.Provider)
	}

	routingModels := []string{
		config.LLM.Routing.Planning,
		config.LLM.Routing.Instruction,
		config.LLM.Routing.Synthesis,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if model == "" {
			return fmt.Errorf("all llm.routing models must be set")
		}
	}

	return nil
}
