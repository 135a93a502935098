package models

import "fmt"

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// StatusError reports a non-2xx answer from a search backend so callers can
// classify client mistakes apart from backend outages.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search backend status %d: %s", e.Code, e.Body)
}
