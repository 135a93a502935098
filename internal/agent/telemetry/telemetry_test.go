package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/goutham-kaluvakolu/MA-System/config"
)

func newEnabled() *Telemetry {
	return NewTelemetry(config.TelemetryConfig{Enabled: true})
}

func TestRecordRunEventUpdatesCounts(t *testing.T) {
	tel := newEnabled()
	ctx := context.Background()

	tel.RecordRunEvent(ctx, RunEvent{ID: "r1", Completed: true, Duration: 2 * time.Second, Steps: 3})
	tel.RecordRunEvent(ctx, RunEvent{ID: "r2", Completed: false, AbortReason: "iteration_ceiling_exceeded", Duration: 4 * time.Second})

	m := tel.GetMetrics()
	if m.TotalRuns != 2 || m.CompletedRuns != 1 || m.AbortedRuns != 1 {
		t.Fatalf("unexpected run counts: %+v", m)
	}
	if m.AverageRunTime != 3*time.Second {
		t.Fatalf("expected 3s average, got %v", m.AverageRunTime)
	}
}

func TestRecordStepEventTracksSuccessRate(t *testing.T) {
	tel := newEnabled()
	ctx := context.Background()

	tel.RecordStepEvent(ctx, StepEvent{Capability: "web_search", Success: true, Duration: time.Second})
	tel.RecordStepEvent(ctx, StepEvent{Capability: "web_search", Success: false, Duration: 3 * time.Second})

	m := tel.GetMetrics()
	if m.StepExecutions["web_search"] != 2 {
		t.Fatalf("expected 2 executions, got %d", m.StepExecutions["web_search"])
	}
	if rate := m.StepSuccessRates["web_search"]; rate != 0.5 {
		t.Fatalf("expected 0.5 success rate, got %f", rate)
	}
	if avg := m.StepAverageTimes["web_search"]; avg != 2*time.Second {
		t.Fatalf("expected 2s average, got %v", avg)
	}
}

func TestRecordPlannerEventCountsFailures(t *testing.T) {
	tel := newEnabled()
	ctx := context.Background()

	tel.RecordPlannerEvent(ctx, PlannerEvent{Kind: "delegate", ModelUsed: "gpt-4o", TokensUsed: 120})
	tel.RecordPlannerEvent(ctx, PlannerEvent{Failed: true})

	m := tel.GetMetrics()
	if m.PlannerDecisions != 2 || m.PlannerFailures != 1 {
		t.Fatalf("unexpected planner counts: %+v", m)
	}
	if m.LLMTokensUsed["gpt-4o"] != 120 {
		t.Fatalf("expected token usage recorded, got %d", m.LLMTokensUsed["gpt-4o"])
	}
}

func TestDisabledTelemetryRecordsNothing(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: false})
	ctx := context.Background()

	tel.RecordRunEvent(ctx, RunEvent{ID: "r1", Completed: true})
	tel.RecordStepEvent(ctx, StepEvent{Capability: "google", Success: true})

	m := tel.GetMetrics()
	if m.TotalRuns != 0 || len(m.StepExecutions) != 0 {
		t.Fatalf("disabled telemetry should not record events: %+v", m)
	}
}
