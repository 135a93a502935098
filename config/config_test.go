package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	setDefaults()
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults: %v", err)
	}
	return &cfg
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := loadDefaults(t)
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Orchestrator.IterationCeiling != 10 {
		t.Fatalf("expected default ceiling 10, got %d", cfg.Orchestrator.IterationCeiling)
	}
	if cfg.Orchestrator.StepTimeout != 2*time.Minute {
		t.Fatalf("expected default step timeout 2m, got %v", cfg.Orchestrator.StepTimeout)
	}
}

func TestValidateRejectsMissingCeiling(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Orchestrator.IterationCeiling = 0
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected validation to reject zero iteration ceiling")
	}
}

func TestValidateRejectsUnknownSearchProvider(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Capabilities.WebSearch.Provider = "duckduckgo"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected validation to reject unknown search provider")
	}
}

func TestValidateRejectsEmptySigningSecret(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Capabilities.SigningSecret = ""
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected validation to reject empty signing secret")
	}
}

func TestValidateRejectsEmptyRoutingModel(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.LLM.Routing.Planning = ""
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected validation to reject empty routing model")
	}
}
