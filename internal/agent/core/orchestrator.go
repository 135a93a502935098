package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goutham-kaluvakolu/MA-System/config"
	"github.com/goutham-kaluvakolu/MA-System/internal/agent/telemetry"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
	"github.com/goutham-kaluvakolu/MA-System/utils"
)

// ErrUnknownRun indicates a run id the orchestrator never saw.
var ErrUnknownRun = fmt.Errorf("unknown run")

// Orchestrator drives the plan/dispatch/integrate cycle for each task.
// Runs are independent: every run owns its PlanState and no state is
// shared between loops beyond the status mirror.
type Orchestrator struct {
	config      *config.Config
	logger      *log.Logger
	telemetry   *telemetry.Telemetry
	capRegistry *capability.Registry

	planner     DecisionPlanner
	executors   map[string]Executor
	llmProvider LLMProvider

	// Run state mirror for the HTTP layer
	runs map[string]*RunStatus
	mu   sync.RWMutex

	// Concurrency control
	semaphore chan struct{}
}

// NewOrchestrator creates a new orchestrator instance
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry, registry *capability.Registry) (*Orchestrator, error) {
	if cfg.Orchestrator.IterationCeiling <= 0 {
		return nil, fmt.Errorf("iteration ceiling must be positive, got %d", cfg.Orchestrator.IterationCeiling)
	}
	if cfg.Orchestrator.MaxConcurrentRuns <= 0 {
		return nil, fmt.Errorf("max concurrent runs must be positive, got %d", cfg.Orchestrator.MaxConcurrentRuns)
	}

	llmProvider, err := NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	executors, err := NewExecutors(cfg, llmProvider, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create executors: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}

	return &Orchestrator{
		config:      cfg,
		logger:      logger,
		telemetry:   tel,
		capRegistry: registry,
		planner:     NewPlanner(cfg, llmProvider, tel, registry),
		executors:   executors,
		llmProvider: llmProvider,
		runs:        make(map[string]*RunStatus),
		semaphore:   make(chan struct{}, cfg.Orchestrator.MaxConcurrentRuns),
	}, nil
}

// LLM exposes the orchestrator's underlying LLM provider.
func (o *Orchestrator) LLM() LLMProvider {
	return o.llmProvider
}

// StartRun launches a run in the background and returns its id
// immediately. The run detaches from the caller's context; cancellation
// happens through the returned cancel path of the server's lifecycle.
func (o *Orchestrator) StartRun(ctx context.Context, taskText string, ceiling int) (string, error) {
	if taskText == "" {
		return "", fmt.Errorf("task text is empty")
	}
	runID := uuid.New().String()
	o.registerRun(runID, taskText)

	go func() {
		if _, err := o.runTask(context.WithoutCancel(ctx), runID, taskText, ceiling); err != nil {
			o.logger.Printf("Run %s finished with error: %v", runID, err)
		}
	}()

	return runID, nil
}

// RunTask executes a task to completion and returns the terminal record.
// A non-positive ceiling falls back to the configured default.
func (o *Orchestrator) RunTask(ctx context.Context, taskText string, ceiling int) (RunResult, error) {
	if taskText == "" {
		return RunResult{}, fmt.Errorf("task text is empty")
	}
	runID := uuid.New().String()
	o.registerRun(runID, taskText)
	return o.runTask(ctx, runID, taskText, ceiling)
}

// Status returns the status mirror for a run.
func (o *Orchestrator) Status(runID string) (RunStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	status, ok := o.runs[runID]
	if !ok {
		return RunStatus{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return *status, nil
}

func (o *Orchestrator) registerRun(runID, taskText string) {
	now := time.Now()
	o.mu.Lock()
	o.runs[runID] = &RunStatus{
		RunID:       runID,
		Task:        taskText,
		Status:      "pending",
		CreatedAt:   now,
		LastUpdated: now,
	}
	o.mu.Unlock()
}

func (o *Orchestrator) updateStatus(runID string, mutate func(*RunStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status, ok := o.runs[runID]
	if !ok {
		return
	}
	mutate(status)
	status.LastUpdated = time.Now()
}

func (o *Orchestrator) runTask(ctx context.Context, runID, taskText string, ceiling int) (RunResult, error) {
	startTime := time.Now()
	if ceiling <= 0 {
		ceiling = o.config.Orchestrator.IterationCeiling
	}

	// Gate concurrent runs
	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		return o.finishRun(ctx, runID, startTime, RunResult{RunID: runID, AbortReason: AbortCancelled}), nil
	}

	task := Task{ID: runID, Content: taskText, CreatedAt: startTime}
	state := &PlanState{Task: task}

	o.logger.Printf("Starting run %s (ceiling %d): %s", runID, ceiling, utils.Truncate(taskText, 120))

	for {
		if ctx.Err() != nil {
			return o.finishRun(ctx, runID, startTime, o.abort(state, AbortCancelled)), nil
		}

		o.updateStatus(runID, func(s *RunStatus) {
			s.Status = "planning"
			s.CompletedSteps = len(state.Steps)
		})

		action, err := o.planner.Decide(ctx, task, state.Steps)
		if err != nil {
			if ctx.Err() != nil {
				return o.finishRun(ctx, runID, startTime, o.abort(state, AbortCancelled)), nil
			}
			o.logger.Printf("Run %s: planner failed: %v", runID, err)
			return o.finishRun(ctx, runID, startTime, o.abort(state, AbortPlannerFailure)), nil
		}

		if action.Kind == ActionFinish {
			state.Completed = true
			state.FinalAnswer = action.Answer
			o.logger.Printf("Run %s: finished after %d steps", runID, len(state.Steps))
			return o.finishRun(ctx, runID, startTime, RunResult{
				RunID:       runID,
				Completed:   true,
				FinalAnswer: action.Answer,
				History:     state.Steps,
			}), nil
		}

		// Delegate path. The ceiling bounds recorded steps: delegating
		// at the ceiling aborts without appending another step.
		if len(state.Steps) >= ceiling {
			o.logger.Printf("Run %s: iteration ceiling %d reached", runID, ceiling)
			return o.finishRun(ctx, runID, startTime, o.abort(state, AbortCeilingExceeded)), nil
		}

		if action.GuardReason != "" {
			step := o.appendStep(state, action)
			o.completeStep(state, step.Index, func(s *PlanStep) {
				s.Status = StepFailed
				s.Error = action.GuardReason
			})
			o.logger.Printf("Run %s: step %d blocked by repeat guard", runID, step.Index)
			continue
		}

		executor, ok := o.executors[action.Capability]
		if !ok {
			o.logger.Printf("Run %s: unknown capability %q", runID, action.Capability)
			return o.finishRun(ctx, runID, startTime, o.abort(state, AbortUnknownCapability)), nil
		}

		step := o.appendStep(state, action)
		o.updateStatus(runID, func(s *RunStatus) {
			s.Status = "executing"
			s.CurrentStep = step.Index
		})

		stepStart := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, o.config.Orchestrator.StepTimeout)
		result := executor.Execute(stepCtx, action.Instruction, state.Steps[:len(state.Steps)-1])
		cancel()

		if ctx.Err() != nil {
			o.completeStep(state, step.Index, func(s *PlanStep) {
				s.Status = StepFailed
				s.Error = "run cancelled"
			})
			return o.finishRun(ctx, runID, startTime, o.abort(state, AbortCancelled)), nil
		}

		o.completeStep(state, step.Index, func(s *PlanStep) {
			if result.Kind == ResultError {
				s.Status = StepFailed
				s.Result = &result
				s.Error = fmt.Sprintf("%s: %s", result.Reason, result.Message)
			} else {
				s.Status = StepSucceeded
				s.Result = &result
			}
		})

		if o.telemetry != nil {
			o.telemetry.RecordStepEvent(ctx, telemetry.StepEvent{
				ID:         runID,
				Capability: action.Capability,
				StartTime:  stepStart,
				EndTime:    time.Now(),
				Duration:   time.Since(stepStart),
				Success:    result.Kind != ResultError,
				Error:      result.Message,
			})
		}
		o.logger.Printf("Run %s: step %d (%s) %s", runID, step.Index, action.Capability, state.Steps[step.Index-1].Status)
	}
}

// appendStep records a new running step with the next gapless index.
func (o *Orchestrator) appendStep(state *PlanState, action NextAction) PlanStep {
	step := PlanStep{
		Index:       len(state.Steps) + 1,
		Capability:  action.Capability,
		Instruction: action.Instruction,
		Status:      StepRunning,
		StartedAt:   time.Now(),
	}
	state.Steps = append(state.Steps, step)
	return step
}

// completeStep applies the terminal mutation to a step exactly once.
func (o *Orchestrator) completeStep(state *PlanState, index int, mutate func(*PlanStep)) {
	step := &state.Steps[index-1]
	if step.Status.Terminal() {
		return
	}
	mutate(step)
	step.CompletedAt = time.Now()
}

func (o *Orchestrator) abort(state *PlanState, reason string) RunResult {
	return RunResult{
		RunID:       state.Task.ID,
		History:     state.Steps,
		AbortReason: reason,
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, startTime time.Time, result RunResult) RunResult {
	if result.RunID == "" {
		result.RunID = runID
	}
	o.updateStatus(runID, func(s *RunStatus) {
		if result.Completed {
			s.Status = "completed"
		} else {
			s.Status = "aborted"
			s.Error = result.AbortReason
		}
		s.CompletedSteps = len(result.History)
		s.Result = &result
	})

	if o.telemetry != nil {
		o.telemetry.RecordRunEvent(ctx, telemetry.RunEvent{
			ID:          runID,
			StartTime:   startTime,
			EndTime:     time.Now(),
			Duration:    time.Since(startTime),
			Completed:   result.Completed,
			AbortReason: result.AbortReason,
			Steps:       len(result.History),
		})
	}
	return result
}
