package core

import (
	"context"
	"time"

	googletools "github.com/goutham-kaluvakolu/MA-System/tools/google"
)

// Task represents a user's natural-language request
type Task struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StepStatus is the lifecycle state of a plan step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether a status can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepSucceeded || s == StepFailed
}

// PlanStep is one delegated unit of work. Index is 1-based and gapless
// within a run. Once Status is terminal the step is never mutated again.
type PlanStep struct {
	Index       int               `json:"index"`
	Capability  string            `json:"capability"`
	Instruction string            `json:"instruction"`
	Status      StepStatus        `json:"status"`
	Result      *CapabilityResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// PlanState is the aggregate record of a single run. It is owned by
// exactly one orchestration loop and never shared between runs.
type PlanState struct {
	Task        Task       `json:"task"`
	Steps       []PlanStep `json:"steps"`
	Completed   bool       `json:"completed"`
	FinalAnswer string     `json:"final_answer,omitempty"`
}

// ResultKind discriminates CapabilityResult payloads
type ResultKind string

const (
	ResultFindings     ResultKind = "findings"
	ResultEmails       ResultKind = "emails"
	ResultEvents       ResultKind = "events"
	ResultEventCreated ResultKind = "event_created"
	ResultEventDeleted ResultKind = "event_deleted"
	ResultError        ResultKind = "error"
)

// CapabilityErrorReason classifies capability failures
type CapabilityErrorReason string

const (
	ReasonNotFound            CapabilityErrorReason = "not_found"
	ReasonUnauthorized        CapabilityErrorReason = "unauthorized"
	ReasonInvalidRequest      CapabilityErrorReason = "invalid_request"
	ReasonUpstreamUnavailable CapabilityErrorReason = "upstream_unavailable"
	ReasonUnknown             CapabilityErrorReason = "unknown"
)

// Finding is one distilled web search result
type Finding struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CapabilityResult is the discriminated outcome of a step execution.
// Exactly one payload field matching Kind is populated; Summary is a
// human-readable digest present on every successful kind.
type CapabilityResult struct {
	Kind     ResultKind               `json:"kind"`
	Summary  string                   `json:"summary,omitempty"`
	Findings []Finding                `json:"findings,omitempty"`
	Emails   []googletools.EmailSummary `json:"emails,omitempty"`
	Events   []googletools.Event      `json:"events,omitempty"`
	Event    *googletools.Event       `json:"event,omitempty"`
	Reason   CapabilityErrorReason    `json:"reason,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// ErrorResult builds the error variant of a CapabilityResult
func ErrorResult(reason CapabilityErrorReason, message string) CapabilityResult {
	return CapabilityResult{Kind: ResultError, Reason: reason, Message: message}
}

// ActionKind discriminates planner decisions
type ActionKind string

const (
	ActionDelegate ActionKind = "delegate"
	ActionFinish   ActionKind = "finish"
)

// NextAction is the planner's decision: delegate one more step or
// finish with an answer. GuardReason is set when the decision repeats a
// succeeded non-idempotent instruction; the loop records it as a failed
// step without dispatching.
type NextAction struct {
	Kind        ActionKind `json:"kind"`
	Capability  string     `json:"capability,omitempty"`
	Instruction string     `json:"instruction,omitempty"`
	Answer      string     `json:"answer,omitempty"`
	GuardReason string     `json:"guard_reason,omitempty"`
}

// Abort reasons for a run that ends without a planner Finish
const (
	AbortUnknownCapability = "unknown_capability"
	AbortCeilingExceeded   = "iteration_ceiling_exceeded"
	AbortPlannerFailure    = "planner_failure"
	AbortCancelled         = "cancelled"
)

// RunResult is the terminal record of a run. Completed and AbortReason
// are mutually exclusive; History always carries every recorded step.
type RunResult struct {
	RunID       string     `json:"run_id"`
	Completed   bool       `json:"completed"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	History     []PlanStep `json:"history"`
	AbortReason string     `json:"abort_reason,omitempty"`
}

// RunStatus mirrors the progress of an in-flight or finished run
type RunStatus struct {
	RunID          string     `json:"run_id"`
	Task           string     `json:"task"`
	Status         string     `json:"status"` // pending, planning, executing, completed, aborted
	CurrentStep    int        `json:"current_step"`
	CompletedSteps int        `json:"completed_steps"`
	Result         *RunResult `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// Executor runs one delegated instruction against a capability backend.
// Failures never cross the boundary as Go errors: every outcome is a
// CapabilityResult, with the error variant carrying the classification.
type Executor interface {
	Execute(ctx context.Context, instruction string, history []PlanStep) CapabilityResult
}

// DecisionPlanner decides the next action for a task given its history.
type DecisionPlanner interface {
	Decide(ctx context.Context, task Task, history []PlanStep) (NextAction, error)
}

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	Description     string  `json:"description"`
}
