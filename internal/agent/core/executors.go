package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goutham-kaluvakolu/MA-System/config"
	googletools "github.com/goutham-kaluvakolu/MA-System/tools/google"
	websearch "github.com/goutham-kaluvakolu/MA-System/tools/web_search"
	searchmodels "github.com/goutham-kaluvakolu/MA-System/tools/web_search/models"
	"github.com/goutham-kaluvakolu/MA-System/utils"
)

// SearchExecutor handles web_search steps: it derives a query from the
// instruction, calls the search backend and synthesizes the findings.
type SearchExecutor struct {
	config      *config.Config
	llmProvider LLMProvider
	searcher    websearch.WebSearcher
	logger      *log.Logger
}

// NewSearchExecutor creates a new search executor instance
func NewSearchExecutor(cfg *config.Config, llmProvider LLMProvider, searcher websearch.WebSearcher) *SearchExecutor {
	return &SearchExecutor{
		config:      cfg,
		llmProvider: llmProvider,
		searcher:    searcher,
		logger:      log.New(log.Writer(), "[SEARCH-AGENT] ", log.LstdFlags),
	}
}

// Execute runs one search instruction. Upstream failures are classified
// into the error result variant, never returned as Go errors.
func (e *SearchExecutor) Execute(ctx context.Context, instruction string, history []PlanStep) CapabilityResult {
	query, maxResults := e.deriveQuery(ctx, instruction)
	if maxResults <= 0 {
		maxResults = e.config.Capabilities.WebSearch.MaxResults
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	e.logger.Printf("Searching: %q (max %d)", query, maxResults)
	results, err := e.searcher.Search(ctx, query, maxResults)
	if err != nil {
		reason, message := classifySearchError(err)
		e.logger.Printf("Search failed (%s): %v", reason, err)
		return ErrorResult(reason, message)
	}

	findings := make([]Finding, 0, len(results))
	for _, r := range results {
		findings = append(findings, Finding{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}

	summary := e.synthesize(ctx, instruction, findings)
	return CapabilityResult{Kind: ResultFindings, Findings: findings, Summary: summary}
}

// deriveQuery asks the instruction model for a search query. If the
// model is unavailable the raw instruction still makes a workable query.
func (e *SearchExecutor) deriveQuery(ctx context.Context, instruction string) (string, int) {
	prompt := fmt.Sprintf(`Turn this step instruction into one web search query.

INSTRUCTION: %s

OUTPUT FORMAT (JSON, nothing else):
{"query": "the search query", "max_results": 5}`, instruction)

	response, err := e.llmProvider.Generate(ctx, prompt, e.config.LLM.Routing.Instruction, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  200,
	})
	if err != nil {
		e.logger.Printf("Warning: query derivation failed: %v, using instruction verbatim", err)
		return instruction, 0
	}
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return instruction, 0
	}
	var raw struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil || strings.TrimSpace(raw.Query) == "" {
		return instruction, 0
	}
	return raw.Query, raw.MaxResults
}

// synthesize distills the findings into a short answer to the
// instruction. A deterministic digest stands in when the model fails.
func (e *SearchExecutor) synthesize(ctx context.Context, instruction string, findings []Finding) string {
	if len(findings) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, f.Title, f.URL, utils.Truncate(f.Snippet, 300))
	}

	prompt := fmt.Sprintf(`Answer the instruction using only these search results. Be concise and factual; cite nothing the results do not support.

INSTRUCTION: %s

SEARCH RESULTS:
%s`, instruction, b.String())

	summary, err := e.llmProvider.Generate(ctx, prompt, e.config.LLM.Routing.Synthesis, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  600,
	})
	if err != nil {
		e.logger.Printf("Warning: synthesis failed: %v, returning result digest", err)
		return utils.Truncate(b.String(), 800)
	}
	return summary
}

func classifySearchError(err error) (CapabilityErrorReason, string) {
	var statusErr *searchmodels.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden:
			return ReasonUnauthorized, err.Error()
		case statusErr.Code >= 400 && statusErr.Code < 500:
			return ReasonInvalidRequest, err.Error()
		default:
			return ReasonUpstreamUnavailable, err.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonUpstreamUnavailable, "search timed out"
	}
	return ReasonUpstreamUnavailable, err.Error()
}

// googleOperation is the structured call the instruction model produces
// from a google step instruction.
type googleOperation struct {
	Operation  string `json:"operation"`
	Parameters struct {
		MaxResults int                    `json:"max_results"`
		CalendarID string                 `json:"calendar_id"`
		Query      string                 `json:"query"`
		Start      string                 `json:"start"`
		End        string                 `json:"end"`
		EventID    string                 `json:"event_id"`
		Event      *googletools.EventInput `json:"event"`
	} `json:"parameters"`
}

// GoogleExecutor handles google steps in two phases: translate the
// instruction into exactly one typed operation, run it, then format the
// raw answer into the structured result.
type GoogleExecutor struct {
	config      *config.Config
	llmProvider LLMProvider
	client      *googletools.Client
	logger      *log.Logger
}

// NewGoogleExecutor creates a new google executor instance
func NewGoogleExecutor(cfg *config.Config, llmProvider LLMProvider, client *googletools.Client) *GoogleExecutor {
	return &GoogleExecutor{
		config:      cfg,
		llmProvider: llmProvider,
		client:      client,
		logger:      log.New(log.Writer(), "[GOOGLE-AGENT] ", log.LstdFlags),
	}
}

// Execute runs one google instruction. Mutations are dispatched at most
// once; only the client's read paths carry a transport retry.
func (e *GoogleExecutor) Execute(ctx context.Context, instruction string, history []PlanStep) CapabilityResult {
	op, err := e.deriveOperation(ctx, instruction, history)
	if err != nil {
		e.logger.Printf("Operation derivation failed: %v", err)
		return ErrorResult(ReasonInvalidRequest, fmt.Sprintf("could not derive a google operation: %v", err))
	}

	e.logger.Printf("Executing operation %s", op.Operation)
	result := e.dispatch(ctx, op, history)
	if result.Kind == ResultError {
		return result
	}

	result.Summary = e.formatSummary(ctx, instruction, result)
	return result
}

func (e *GoogleExecutor) dispatch(ctx context.Context, op googleOperation, history []PlanStep) CapabilityResult {
	maxResults := op.Parameters.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	switch op.Operation {
	case "list_upcoming_events":
		events, err := e.client.ListUpcomingEvents(ctx, maxResults, op.Parameters.CalendarID)
		if err != nil {
			return classifyGoogleError(err)
		}
		return CapabilityResult{Kind: ResultEvents, Events: events}

	case "list_events_in_range":
		start, err := time.Parse(time.RFC3339, op.Parameters.Start)
		if err != nil {
			return ErrorResult(ReasonInvalidRequest, fmt.Sprintf("invalid range start %q", op.Parameters.Start))
		}
		end, err := time.Parse(time.RFC3339, op.Parameters.End)
		if err != nil {
			return ErrorResult(ReasonInvalidRequest, fmt.Sprintf("invalid range end %q", op.Parameters.End))
		}
		events, err := e.client.ListEventsInRange(ctx, start, end, op.Parameters.CalendarID, maxResults)
		if err != nil {
			return classifyGoogleError(err)
		}
		return CapabilityResult{Kind: ResultEvents, Events: events}

	case "create_event":
		if op.Parameters.Event == nil || strings.TrimSpace(op.Parameters.Event.Summary) == "" {
			return ErrorResult(ReasonInvalidRequest, "create_event requires an event with a summary")
		}
		if prior, ok := duplicateCreate(history, *op.Parameters.Event); ok {
			e.logger.Printf("Refusing create_event: payload duplicates the event created in step %d", prior)
			return ErrorResult(ReasonInvalidRequest, fmt.Sprintf("create_event duplicates the event created in step %d", prior))
		}
		event, err := e.client.CreateEvent(ctx, *op.Parameters.Event)
		if err != nil {
			return classifyGoogleError(err)
		}
		return CapabilityResult{Kind: ResultEventCreated, Event: &event}

	case "delete_event":
		if strings.TrimSpace(op.Parameters.EventID) == "" {
			return ErrorResult(ReasonInvalidRequest, "delete_event requires an event_id")
		}
		if err := e.client.DeleteEvent(ctx, op.Parameters.EventID, op.Parameters.CalendarID); err != nil {
			return classifyGoogleError(err)
		}
		return CapabilityResult{Kind: ResultEventDeleted}

	case "list_recent_emails":
		emails, err := e.client.ListRecentEmails(ctx, maxResults, op.Parameters.Query)
		if err != nil {
			return classifyGoogleError(err)
		}
		return CapabilityResult{Kind: ResultEmails, Emails: emails}

	default:
		return ErrorResult(ReasonInvalidRequest, fmt.Sprintf("unsupported operation %q", op.Operation))
	}
}

// duplicateCreate reports whether a create payload resolves to an event
// a prior succeeded step already created. Matching is on the derived
// payload (summary plus both boundaries), not the instruction text, so a
// rephrased instruction that derives the same event is still caught.
func duplicateCreate(history []PlanStep, input googletools.EventInput) (int, bool) {
	for _, step := range history {
		if step.Status != StepSucceeded || step.Result == nil || step.Result.Kind != ResultEventCreated {
			continue
		}
		created := step.Result.Event
		if created == nil {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(created.Summary), strings.TrimSpace(input.Summary)) {
			continue
		}
		if sameEventTime(created.Start, input.Start) && sameEventTime(created.End, input.End) {
			return step.Index, true
		}
	}
	return 0, false
}

// sameEventTime compares timed boundaries as instants and all-day
// boundaries as calendar dates.
func sameEventTime(a, b googletools.EventTime) bool {
	if a.DateTime != "" || b.DateTime != "" {
		at, errA := time.Parse(time.RFC3339, a.DateTime)
		bt, errB := time.Parse(time.RFC3339, b.DateTime)
		if errA != nil || errB != nil {
			return a.DateTime == b.DateTime
		}
		return at.Equal(bt)
	}
	return a.Date == b.Date
}

func (e *GoogleExecutor) deriveOperation(ctx context.Context, instruction string, history []PlanStep) (googleOperation, error) {
	prompt := fmt.Sprintf(`Translate this step instruction into exactly one Google operation call.

INSTRUCTION: %s

PRIOR STEPS (for ids and context):
%s

OPERATIONS:
- list_upcoming_events: parameters {max_results, calendar_id}
- list_events_in_range: parameters {start, end, calendar_id, max_results} with RFC3339 times
- create_event: parameters {event: {summary, location, description, start: {dateTime|date, timeZone}, end: {dateTime|date, timeZone}}}
- delete_event: parameters {event_id, calendar_id}
- list_recent_emails: parameters {max_results, query} where query is an optional Gmail search expression

Use event ids exactly as they appear in prior step results. Today is %s.

OUTPUT FORMAT (JSON, nothing else):
{"operation": "operation_name", "parameters": {...}}`,
		instruction, renderHistory(history), time.Now().Format("2006-01-02 (Monday)"))

	response, err := e.llmProvider.Generate(ctx, prompt, e.config.LLM.Routing.Instruction, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  500,
	})
	if err != nil {
		return googleOperation{}, fmt.Errorf("generate: %w", err)
	}
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return googleOperation{}, err
	}
	var op googleOperation
	if err := json.Unmarshal([]byte(jsonStr), &op); err != nil {
		return googleOperation{}, fmt.Errorf("failed to parse operation JSON: %w", err)
	}
	if strings.TrimSpace(op.Operation) == "" {
		return googleOperation{}, fmt.Errorf("operation missing")
	}
	return op, nil
}

// formatSummary runs the formatting pass over the raw typed answer so
// the history carries a digest the planner can reason about.
func (e *GoogleExecutor) formatSummary(ctx context.Context, instruction string, result CapabilityResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fallbackSummary(result)
	}

	prompt := fmt.Sprintf(`Summarize the outcome of this Google operation in one or two sentences for the user. Mention counts, titles and times that matter; invent nothing.

INSTRUCTION: %s

RAW RESULT:
%s`, instruction, utils.Truncate(string(raw), 4000))

	summary, err := e.llmProvider.Generate(ctx, prompt, e.config.LLM.Routing.Synthesis, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  300,
	})
	if err != nil {
		e.logger.Printf("Warning: result formatting failed: %v, using fallback summary", err)
		return fallbackSummary(result)
	}
	return summary
}

func fallbackSummary(result CapabilityResult) string {
	switch result.Kind {
	case ResultEvents:
		return fmt.Sprintf("%d events returned", len(result.Events))
	case ResultEmails:
		return fmt.Sprintf("%d emails returned", len(result.Emails))
	case ResultEventCreated:
		if result.Event != nil {
			return fmt.Sprintf("event %q created (id=%s)", result.Event.Summary, result.Event.ID)
		}
		return "event created"
	case ResultEventDeleted:
		return "event deleted"
	default:
		return ""
	}
}

func classifyGoogleError(err error) CapabilityResult {
	if errors.Is(err, googletools.ErrNotFound) {
		return ErrorResult(ReasonNotFound, err.Error())
	}
	var apiErr *googletools.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return ErrorResult(ReasonUnauthorized, err.Error())
		case apiErr.Code == http.StatusNotFound:
			return ErrorResult(ReasonNotFound, err.Error())
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return ErrorResult(ReasonInvalidRequest, err.Error())
		case apiErr.Code >= 500:
			return ErrorResult(ReasonUpstreamUnavailable, err.Error())
		default:
			return ErrorResult(ReasonUnknown, err.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorResult(ReasonUpstreamUnavailable, "google service call timed out")
	}
	return ErrorResult(ReasonUpstreamUnavailable, err.Error())
}
