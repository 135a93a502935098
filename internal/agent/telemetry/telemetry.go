package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goutham-kaluvakolu/MA-System/config"
)

// Telemetry tracks run, step and planner activity for the assistant.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex

	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	plannerTotal  *prometheus.CounterVec
	llmTokensUsed *prometheus.CounterVec
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns      int64
	CompletedRuns  int64
	AbortedRuns    int64
	AverageRunTime time.Duration

	// Step metrics keyed by capability
	StepExecutions   map[string]int64
	StepSuccessRates map[string]float64
	StepAverageTimes map[string]time.Duration

	// Planner metrics
	PlannerDecisions int64
	PlannerFailures  int64

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// RunEvent represents a single completed or aborted run.
type RunEvent struct {
	ID          string
	Task        string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Completed   bool
	AbortReason string
	Steps       int
}

// StepEvent represents one delegated step execution.
type StepEvent struct {
	ID         string
	Capability string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	ModelUsed  string
	TokensUsed int64
}

// PlannerEvent represents one planner decision.
type PlannerEvent struct {
	ID         string
	Kind       string
	ModelUsed  string
	TokensUsed int64
	Duration   time.Duration
	Failed     bool
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StepExecutions:   make(map[string]int64),
			StepSuccessRates: make(map[string]float64),
			StepAverageTimes: make(map[string]time.Duration),
			LLMRequests:      make(map[string]int64),
			LLMTokensUsed:    make(map[string]int64),
		},
		registry: prometheus.NewRegistry(),
	}

	t.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "masystem_runs_total",
		Help: "Completed and aborted runs by outcome.",
	}, []string{"outcome"})
	t.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "masystem_run_duration_seconds",
		Help:    "Wall-clock run duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	t.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "masystem_steps_total",
		Help: "Delegated step executions by capability and status.",
	}, []string{"capability", "status"})
	t.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "masystem_step_duration_seconds",
		Help:    "Step execution duration by capability.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"capability"})
	t.plannerTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "masystem_planner_decisions_total",
		Help: "Planner decisions by kind.",
	}, []string{"kind"})
	t.llmTokensUsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "masystem_llm_tokens_total",
		Help: "LLM tokens consumed by model.",
	}, []string{"model"})

	t.registry.MustRegister(t.runsTotal, t.runDuration, t.stepsTotal, t.stepDuration, t.plannerTotal, t.llmTokensUsed)

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// Registry exposes the prometheus registry for the /metrics handler.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// RecordRunEvent records a finished run
func (t *Telemetry) RecordRunEvent(ctx context.Context, event RunEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	outcome := "completed"
	if event.Completed {
		t.metrics.CompletedRuns++
	} else {
		t.metrics.AbortedRuns++
		outcome = "aborted"
	}

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	t.runsTotal.WithLabelValues(outcome).Inc()
	t.runDuration.Observe(event.Duration.Seconds())

	t.logger.Printf("Run Event: ID=%s, Completed=%t, Duration=%v, Steps=%d, AbortReason=%q",
		event.ID, event.Completed, event.Duration, event.Steps, event.AbortReason)
}

// RecordStepEvent records a delegated step execution
func (t *Telemetry) RecordStepEvent(ctx context.Context, event StepEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StepExecutions[event.Capability]++

	currentSuccess := t.metrics.StepSuccessRates[event.Capability] * float64(t.metrics.StepExecutions[event.Capability]-1)
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.StepSuccessRates[event.Capability] = currentSuccess / float64(t.metrics.StepExecutions[event.Capability])

	currentAvg := t.metrics.StepAverageTimes[event.Capability]
	executions := t.metrics.StepExecutions[event.Capability]
	if executions == 1 {
		t.metrics.StepAverageTimes[event.Capability] = event.Duration
	} else {
		total := currentAvg * time.Duration(executions-1)
		t.metrics.StepAverageTimes[event.Capability] = (total + event.Duration) / time.Duration(executions)
	}

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.llmTokensUsed.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
	}

	status := "succeeded"
	if !event.Success {
		status = "failed"
	}
	t.stepsTotal.WithLabelValues(event.Capability, status).Inc()
	t.stepDuration.WithLabelValues(event.Capability).Observe(event.Duration.Seconds())

	t.logger.Printf("Step Event: Capability=%s, Success=%t, Duration=%v",
		event.Capability, event.Success, event.Duration)
}

// RecordPlannerEvent records a planner decision
func (t *Telemetry) RecordPlannerEvent(ctx context.Context, event PlannerEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.PlannerDecisions++
	if event.Failed {
		t.metrics.PlannerFailures++
	}
	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.llmTokensUsed.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
	}

	kind := event.Kind
	if event.Failed {
		kind = "failure"
	}
	t.plannerTotal.WithLabelValues(kind).Inc()

	t.logger.Printf("Planner Event: Kind=%s, Model=%s, Duration=%v, Failed=%t",
		event.Kind, event.ModelUsed, event.Duration, event.Failed)
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.StepExecutions = make(map[string]int64)
	metrics.StepSuccessRates = make(map[string]float64)
	metrics.StepAverageTimes = make(map[string]time.Duration)
	metrics.LLMRequests = make(map[string]int64)
	metrics.LLMTokensUsed = make(map[string]int64)

	for k, v := range t.metrics.StepExecutions {
		metrics.StepExecutions[k] = v
	}
	for k, v := range t.metrics.StepSuccessRates {
		metrics.StepSuccessRates[k] = v
	}
	for k, v := range t.metrics.StepAverageTimes {
		metrics.StepAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}

	return metrics
}

// startMetricsCollection starts periodic metrics collection
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, PlannerFailures=%d",
			metrics.CompletedRuns, metrics.TotalRuns,
			metrics.AverageRunTime, metrics.PlannerFailures)
	}
}

// Shutdown gracefully shuts down the telemetry system
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Runs: %d", metrics.TotalRuns)
	if metrics.TotalRuns > 0 {
		t.logger.Printf("  Completion Rate: %.2f%%", float64(metrics.CompletedRuns)/float64(metrics.TotalRuns)*100)
	}
	t.logger.Printf("  Average Run Time: %v", metrics.AverageRunTime)
	t.logger.Printf("  Planner Decisions: %d (%d failed)", metrics.PlannerDecisions, metrics.PlannerFailures)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Runs: %d
  Completed: %d
  Aborted: %d
  Average Run Time: %v
  Planner Decisions: %d (%d failed)

Capability Performance:
`, metrics.TotalRuns, metrics.CompletedRuns, metrics.AbortedRuns,
		metrics.AverageRunTime, metrics.PlannerDecisions, metrics.PlannerFailures)

	for capName, executions := range metrics.StepExecutions {
		successRate := metrics.StepSuccessRates[capName]
		avgTime := metrics.StepAverageTimes[capName]
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			capName, executions, successRate*100, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens\n", model, requests, tokens)
	}

	return report
}
