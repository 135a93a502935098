package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/goutham-kaluvakolu/MA-System/config"
	"github.com/goutham-kaluvakolu/MA-System/internal/agent/telemetry"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
	"github.com/goutham-kaluvakolu/MA-System/utils"
)

// Planner decides the next action of a run: delegate one more step or
// finish with an answer synthesized from the step history.
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	registry    *capability.Registry
	logger      *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry, registry *capability.Registry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		registry:    registry,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Decide produces the next action for a task given the full ordered
// step history. Malformed LLM output is reparsed once with a corrective
// prompt before the error surfaces to the loop.
func (p *Planner) Decide(ctx context.Context, task Task, history []PlanStep) (NextAction, error) {
	startTime := time.Now()

	prompt := p.createDecisionPrompt(task, history)
	model := p.config.LLM.Routing.Planning

	response, inTok, outTok, err := p.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  1000,
	})
	if err != nil {
		p.recordEvent(ctx, task.ID, "", model, inTok+outTok, time.Since(startTime), true)
		return NextAction{}, fmt.Errorf("failed to generate decision: %w", err)
	}

	action, parseErr := p.parseDecisionResponse(response)
	if parseErr != nil {
		p.logger.Printf("Warning: malformed decision, retrying once: %v", parseErr)
		retryPrompt := prompt + fmt.Sprintf("\n\nYour previous reply was not valid (%v). Respond with the JSON object only.", parseErr)
		response, _, _, err = p.llmProvider.GenerateWithTokens(ctx, retryPrompt, model, map[string]interface{}{
			"temperature": 0.0,
			"max_tokens":  1000,
		})
		if err != nil {
			p.recordEvent(ctx, task.ID, "", model, inTok+outTok, time.Since(startTime), true)
			return NextAction{}, fmt.Errorf("failed to regenerate decision: %w", err)
		}
		action, parseErr = p.parseDecisionResponse(response)
		if parseErr != nil {
			p.recordEvent(ctx, task.ID, "", model, inTok+outTok, time.Since(startTime), true)
			return NextAction{}, fmt.Errorf("failed to parse decision response: %w", parseErr)
		}
	}

	if err := p.validateDecision(action, history); err != nil {
		p.recordEvent(ctx, task.ID, string(action.Kind), model, inTok+outTok, time.Since(startTime), true)
		return NextAction{}, fmt.Errorf("decision validation failed: %w", err)
	}

	if action.Kind == ActionDelegate {
		if prior, ok := repeatedMutation(history, action); ok {
			p.logger.Printf("Repeat guard: instruction duplicates succeeded step %d", prior)
			action.GuardReason = fmt.Sprintf("instruction repeats succeeded non-idempotent step %d", prior)
		}
	}

	p.recordEvent(ctx, task.ID, string(action.Kind), model, inTok+outTok, time.Since(startTime), false)
	p.logger.Printf("Decision for task %s after %d steps: %s", task.ID, len(history), action.Kind)

	return action, nil
}

func (p *Planner) recordEvent(ctx context.Context, taskID, kind, model string, tokens int64, duration time.Duration, failed bool) {
	if p.telemetry == nil {
		return
	}
	p.telemetry.RecordPlannerEvent(ctx, telemetry.PlannerEvent{
		ID:         taskID,
		Kind:       kind,
		ModelUsed:  model,
		TokensUsed: tokens,
		Duration:   duration,
		Failed:     failed,
	})
}

// createDecisionPrompt renders the task, the capability sheets and the
// full ordered history into a single planning prompt.
func (p *Planner) createDecisionPrompt(task Task, history []PlanStep) string {
	return fmt.Sprintf(`You are the planning agent of a personal task assistant. You decide the single next action for the user's task.

USER TASK: %s

AVAILABLE CAPABILITIES:
%s

STEP HISTORY (ordered, complete):
%s

DECISION RULES:
1. Delegate exactly one step at a time; never plan several steps ahead.
2. If the history already contains everything needed to answer, finish with the answer.
3. If no steps have run yet you MUST delegate; finishing with an empty history is invalid.
4. A failed step stays in the history; you may rephrase and retry, pick another capability, or finish with a partial answer that names what failed.
5. Never re-issue an instruction that already succeeded, especially event creations and deletions.
6. The instruction must be self-contained: the executor sees the instruction and the history, nothing else.

OUTPUT FORMAT (JSON, nothing else):
{"kind": "delegate", "capability": "web_search|google", "instruction": "what the step should accomplish"}
or
{"kind": "finish", "answer": "the complete answer for the user"}`,
		task.Content, CapabilitiesDoc(), renderHistory(history))
}

// extractJSONObject pulls the first balanced JSON object out of an LLM
// response, tolerating prose around it.
func extractJSONObject(response string) (string, error) {
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no JSON found in response")
}

// parseDecisionResponse parses the LLM reply into a NextAction.
func (p *Planner) parseDecisionResponse(response string) (NextAction, error) {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return NextAction{}, err
	}

	var raw struct {
		Kind        string `json:"kind"`
		Capability  string `json:"capability"`
		Instruction string `json:"instruction"`
		Answer      string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return NextAction{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	switch ActionKind(raw.Kind) {
	case ActionDelegate:
		if strings.TrimSpace(raw.Capability) == "" {
			return NextAction{}, fmt.Errorf("delegate decision missing capability")
		}
		if strings.TrimSpace(raw.Instruction) == "" {
			return NextAction{}, fmt.Errorf("delegate decision missing instruction")
		}
		return NextAction{Kind: ActionDelegate, Capability: raw.Capability, Instruction: raw.Instruction}, nil
	case ActionFinish:
		if strings.TrimSpace(raw.Answer) == "" {
			return NextAction{}, fmt.Errorf("finish decision missing answer")
		}
		return NextAction{Kind: ActionFinish, Answer: raw.Answer}, nil
	default:
		return NextAction{}, fmt.Errorf("unknown decision kind: %q", raw.Kind)
	}
}

// validateDecision enforces the structural rules a decision must meet
// regardless of how well-formed the JSON was.
func (p *Planner) validateDecision(action NextAction, history []PlanStep) error {
	if action.Kind == ActionFinish && len(history) == 0 {
		return fmt.Errorf("finish with empty history")
	}
	if action.Kind == ActionDelegate && p.registry != nil {
		if _, ok := p.registry.Capability(action.Capability); !ok {
			return fmt.Errorf("capability %q is not registered", action.Capability)
		}
	}
	return nil
}

// repeatedMutation reports whether a delegate re-issues an instruction
// that already succeeded as a create or delete. Matching is on the
// normalized instruction text of succeeded mutation steps.
func repeatedMutation(history []PlanStep, action NextAction) (int, bool) {
	if action.Capability != capability.Google {
		return 0, false
	}
	want := normalizeInstruction(action.Instruction)
	for _, step := range history {
		if step.Status != StepSucceeded || step.Result == nil {
			continue
		}
		if step.Result.Kind != ResultEventCreated && step.Result.Kind != ResultEventDeleted {
			continue
		}
		if normalizeInstruction(step.Instruction) == want {
			return step.Index, true
		}
	}
	return 0, false
}

func normalizeInstruction(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// renderHistory formats steps for the prompt, digesting payloads so the
// prompt stays bounded.
func renderHistory(history []PlanStep) string {
	if len(history) == 0 {
		return "(no steps yet)"
	}
	var b strings.Builder
	for _, step := range history {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)", step.Index, step.Capability, utils.Truncate(step.Instruction, 200), step.Status)
		if step.Result != nil {
			fmt.Fprintf(&b, "\n   result: %s", resultDigest(*step.Result))
		}
		if step.Error != "" {
			fmt.Fprintf(&b, "\n   error: %s", utils.Truncate(step.Error, 200))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultDigest(res CapabilityResult) string {
	switch res.Kind {
	case ResultFindings:
		return fmt.Sprintf("%d findings: %s", len(res.Findings), utils.Truncate(res.Summary, 400))
	case ResultEmails:
		return fmt.Sprintf("%d emails: %s", len(res.Emails), utils.Truncate(res.Summary, 400))
	case ResultEvents:
		return fmt.Sprintf("%d events: %s", len(res.Events), utils.Truncate(res.Summary, 400))
	case ResultEventCreated:
		id := ""
		if res.Event != nil {
			id = res.Event.ID
		}
		return fmt.Sprintf("event created (id=%s): %s", id, utils.Truncate(res.Summary, 300))
	case ResultEventDeleted:
		return fmt.Sprintf("event deleted: %s", utils.Truncate(res.Summary, 300))
	case ResultError:
		return fmt.Sprintf("error (%s): %s", res.Reason, utils.Truncate(res.Message, 300))
	default:
		return utils.Truncate(res.Summary, 300)
	}
}
