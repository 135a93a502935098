package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goutham-kaluvakolu/MA-System/config"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
)

func plannerConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Planning:    "gpt-4o",
				Instruction: "gpt-4o-mini",
				Synthesis:   "gpt-4o",
				Fallback:    "gpt-4o-mini",
			},
		},
	}
}

// scriptedLLM replays canned responses and records prompts.
type scriptedLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("no scripted response for call %d", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	resp, err := s.Generate(ctx, prompt, model, options)
	return resp, 0, 0, err
}

func (*scriptedLLM) GetAvailableModels() []string { return []string{"stub"} }

func (*scriptedLLM) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model}, nil
}

func (*scriptedLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

func TestParseDecisionResponseDelegate(t *testing.T) {
	p := NewPlanner(plannerConfig(), &scriptedLLM{}, nil, nil)

	response := `Here is my decision:
{"kind": "delegate", "capability": "web_search", "instruction": "find the weather in Dallas this weekend"}`
	action, err := p.parseDecisionResponse(response)
	if err != nil {
		t.Fatalf("parseDecisionResponse: %v", err)
	}
	if action.Kind != ActionDelegate {
		t.Fatalf("expected delegate, got %s", action.Kind)
	}
	if action.Capability != "web_search" {
		t.Fatalf("unexpected capability %q", action.Capability)
	}
}

func TestParseDecisionResponseRejectsUnknownKind(t *testing.T) {
	p := NewPlanner(plannerConfig(), &scriptedLLM{}, nil, nil)

	if _, err := p.parseDecisionResponse(`{"kind": "replan"}`); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
	if _, err := p.parseDecisionResponse(`{"kind": "delegate", "capability": "google"}`); err == nil {
		t.Fatalf("expected delegate without instruction to fail")
	}
	if _, err := p.parseDecisionResponse("no json here"); err == nil {
		t.Fatalf("expected missing JSON to fail")
	}
}

func TestDecideRetriesMalformedResponseOnce(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"sorry, I cannot decide",
		`{"kind": "delegate", "capability": "google", "instruction": "list upcoming events"}`,
	}}
	p := NewPlanner(plannerConfig(), llm, nil, nil)

	action, err := p.Decide(context.Background(), Task{ID: "t1", Content: "what's on my calendar?"}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", llm.calls)
	}
	if action.Capability != "google" {
		t.Fatalf("unexpected capability %q", action.Capability)
	}
}

func TestDecideFailsAfterSecondMalformedResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"garbage", "more garbage"}}
	p := NewPlanner(plannerConfig(), llm, nil, nil)

	if _, err := p.Decide(context.Background(), Task{ID: "t1", Content: "task"}, nil); err == nil {
		t.Fatalf("expected decide to fail after retry")
	}
	if llm.calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", llm.calls)
	}
}

func TestDecideRejectsFinishOnEmptyHistory(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"kind": "finish", "answer": "done"}`}}
	p := NewPlanner(plannerConfig(), llm, nil, nil)

	_, err := p.Decide(context.Background(), Task{ID: "t1", Content: "task"}, nil)
	if err == nil || !strings.Contains(err.Error(), "empty history") {
		t.Fatalf("expected empty history rejection, got %v", err)
	}
}

func TestDecideRejectsUnregisteredCapability(t *testing.T) {
	reg, err := capability.NewRegistry(capability.DefaultCards(), "", nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	llm := &scriptedLLM{responses: []string{
		`{"kind": "delegate", "capability": "translate", "instruction": "translate the answer to French"}`,
	}}
	p := NewPlanner(plannerConfig(), llm, nil, reg)

	_, err = p.Decide(context.Background(), Task{ID: "t1", Content: "task"}, nil)
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected unregistered capability rejection, got %v", err)
	}
}

func TestDecideAcceptsRegisteredCapability(t *testing.T) {
	reg, err := capability.NewRegistry(capability.DefaultCards(), "", nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	llm := &scriptedLLM{responses: []string{
		`{"kind": "delegate", "capability": "web_search", "instruction": "find the weather in Dallas"}`,
	}}
	p := NewPlanner(plannerConfig(), llm, nil, reg)

	action, err := p.Decide(context.Background(), Task{ID: "t1", Content: "task"}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if action.Capability != capability.WebSearch {
		t.Fatalf("unexpected capability %q", action.Capability)
	}
}

func TestDecideFlagsRepeatedMutation(t *testing.T) {
	instruction := "Create an event called Dentist tomorrow at 3pm"
	history := []PlanStep{{
		Index:       1,
		Capability:  capability.Google,
		Instruction: instruction,
		Status:      StepSucceeded,
		Result:      &CapabilityResult{Kind: ResultEventCreated},
	}}
	llm := &scriptedLLM{responses: []string{
		fmt.Sprintf(`{"kind": "delegate", "capability": "google", "instruction": %q}`, "create an event called  Dentist tomorrow at 3pm"),
	}}
	p := NewPlanner(plannerConfig(), llm, nil, nil)

	action, err := p.Decide(context.Background(), Task{ID: "t1", Content: "book dentist"}, history)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if action.GuardReason == "" {
		t.Fatalf("expected repeat guard to flag the decision")
	}
	if !strings.Contains(action.GuardReason, "step 1") {
		t.Fatalf("guard reason should name the duplicated step, got %q", action.GuardReason)
	}
}

func TestDecideAllowsRepeatAfterFailure(t *testing.T) {
	instruction := "Create an event called Dentist tomorrow at 3pm"
	history := []PlanStep{{
		Index:       1,
		Capability:  capability.Google,
		Instruction: instruction,
		Status:      StepFailed,
		Result:      &CapabilityResult{Kind: ResultError, Reason: ReasonUpstreamUnavailable},
	}}
	llm := &scriptedLLM{responses: []string{
		fmt.Sprintf(`{"kind": "delegate", "capability": "google", "instruction": %q}`, instruction),
	}}
	p := NewPlanner(plannerConfig(), llm, nil, nil)

	action, err := p.Decide(context.Background(), Task{ID: "t1", Content: "book dentist"}, history)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if action.GuardReason != "" {
		t.Fatalf("retry after failure should not be guarded: %q", action.GuardReason)
	}
}

func TestCreateDecisionPromptIncludesHistoryAndCapabilities(t *testing.T) {
	p := NewPlanner(plannerConfig(), &scriptedLLM{}, nil, nil)
	history := []PlanStep{{
		Index:       1,
		Capability:  capability.WebSearch,
		Instruction: "find flight prices to Austin",
		Status:      StepSucceeded,
		Result:      &CapabilityResult{Kind: ResultFindings, Summary: "cheapest fare 120 USD", Findings: []Finding{{Title: "fares"}}},
	}}
	prompt := p.createDecisionPrompt(Task{ID: "t1", Content: "plan my Austin trip"}, history)

	for _, snippet := range []string{
		"plan my Austin trip",
		"Capability: web_search",
		"Capability: google",
		"1. [web_search]",
		"cheapest fare 120 USD",
		`"kind": "finish"`,
	} {
		if !strings.Contains(prompt, snippet) {
			t.Fatalf("prompt missing snippet %q", snippet)
		}
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	if got := renderHistory(nil); got != "(no steps yet)" {
		t.Fatalf("unexpected empty history rendering: %q", got)
	}
}

func TestResultDigestError(t *testing.T) {
	res := CapabilityResult{Kind: ResultError, Reason: ReasonNotFound, Message: "event missing"}
	digest := resultDigest(res)
	if !strings.Contains(digest, "not_found") || !strings.Contains(digest, "event missing") {
		t.Fatalf("unexpected digest %q", digest)
	}
}

func TestRepeatedMutationIgnoresReads(t *testing.T) {
	history := []PlanStep{{
		Index:       1,
		Capability:  capability.Google,
		Instruction: "list upcoming events",
		Status:      StepSucceeded,
		Result:      &CapabilityResult{Kind: ResultEvents},
		StartedAt:   time.Now(),
	}}
	action := NextAction{Kind: ActionDelegate, Capability: capability.Google, Instruction: "list upcoming events"}
	if _, ok := repeatedMutation(history, action); ok {
		t.Fatalf("read operations must not trigger the repeat guard")
	}
}
