package core

import (
	"strings"
	"testing"
	"time"

	"github.com/goutham-kaluvakolu/MA-System/config"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
)

func TestNewLLMProviderRejectsUnsupportedType(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"anthropic": {Type: "anthropic", APIKey: "k"},
		},
	}
	if _, err := NewLLMProvider(cfg); err == nil {
		t.Fatal("expected error for unsupported provider type")
	}
}

func TestNewLLMProviderRejectsEmptyConfig(t *testing.T) {
	if _, err := NewLLMProvider(config.LLMConfig{}); err == nil {
		t.Fatal("expected error for empty provider config")
	}
}

func TestNewLLMProviderBuildsOpenAI(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"openai": {
				Type:   "openai",
				APIKey: "k",
				Models: map[string]config.LLMModel{
					"gpt-4o": {Name: "gpt-4o", MaxTokens: 4096, CostPer1K: 0.005, CostPer1KOutput: 0.015},
				},
				Timeout: 10 * time.Second,
			},
		},
	}
	provider, err := NewLLMProvider(cfg)
	if err != nil {
		t.Fatalf("NewLLMProvider: %v", err)
	}
	info, err := provider.GetModelInfo("gpt-4o")
	if err != nil {
		t.Fatalf("GetModelInfo: %v", err)
	}
	if info.Provider != "openai" || info.MaxTokens != 4096 {
		t.Fatalf("unexpected model info: %+v", info)
	}
	cost := provider.CalculateCost(1000, 1000, "gpt-4o")
	if cost != 0.02 {
		t.Fatalf("expected cost 0.02, got %f", cost)
	}
}

func executorTestConfig() *config.Config {
	return &config.Config{
		Capabilities: config.CapabilitiesConfig{
			WebSearch: config.WebSearchConfig{
				Provider:    "brave",
				BraveAPIKey: "brave-key",
				MaxResults:  5,
				Timeout:     10 * time.Second,
			},
			Google: config.GoogleConfig{
				CalendarURL: "http://localhost:8001",
				GmailURL:    "http://localhost:8000",
				Timeout:     10 * time.Second,
			},
		},
	}
}

func TestNewExecutorsCoversRegisteredCapabilities(t *testing.T) {
	registry, err := capability.NewRegistry(capability.DefaultCards(), "", nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	executors, err := NewExecutors(executorTestConfig(), &scriptedLLM{}, registry)
	if err != nil {
		t.Fatalf("NewExecutors: %v", err)
	}
	if len(executors) != 2 {
		t.Fatalf("expected 2 executors, got %d", len(executors))
	}
	for _, name := range registry.Names() {
		if _, ok := executors[name]; !ok {
			t.Fatalf("capability %s has no executor", name)
		}
	}
}

func TestNewExecutorsRejectsUnknownSearchProvider(t *testing.T) {
	cfg := executorTestConfig()
	cfg.Capabilities.WebSearch.Provider = "duckduckgo"
	_, err := NewExecutors(cfg, &scriptedLLM{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown search provider")
	}
	if !strings.Contains(err.Error(), "web searcher") {
		t.Fatalf("unexpected error: %v", err)
	}
}
