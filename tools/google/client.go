package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the Calendar and Gmail wrapper servers. It is stateless
// apart from its endpoints and safe for concurrent use across runs.
type Client struct {
	calendarURL string
	gmailURL    string
	httpClient  *http.Client
}

func NewClient(calendarURL, gmailURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		calendarURL: calendarURL,
		gmailURL:    gmailURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// ListUpcomingEvents returns the next events on the given calendar.
func (c *Client) ListUpcomingEvents(ctx context.Context, maxResults int, calendarID string) ([]Event, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("calendar_id", defaultCalendar(calendarID))
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.doJSON(ctx, "GET", c.calendarURL+"/events/upcoming?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ListEventsInRange returns events between start and end inclusive.
func (c *Client) ListEventsInRange(ctx context.Context, start, end time.Time, calendarID string, maxResults int) ([]Event, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	q.Set("calendar_id", defaultCalendar(calendarID))
	q.Set("max_results", strconv.Itoa(maxResults))
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.doJSON(ctx, "GET", c.calendarURL+"/events/range?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// CreateEvent creates one event. The wrapper is not idempotent: identical
// payloads create duplicates, so this call is never retried at the transport
// level.
func (c *Client) CreateEvent(ctx context.Context, input EventInput) (Event, error) {
	var out Event
	if err := c.doJSON(ctx, "POST", c.calendarURL+"/events", input, &out, false); err != nil {
		return Event{}, err
	}
	return out, nil
}

// DeleteEvent removes an event, reporting ErrNotFound for unknown ids.
func (c *Client) DeleteEvent(ctx context.Context, eventID, calendarID string) error {
	q := url.Values{}
	q.Set("calendar_id", defaultCalendar(calendarID))
	err := c.doJSON(ctx, "DELETE", c.calendarURL+"/events/"+url.PathEscape(eventID)+"?"+q.Encode(), nil, nil, false)
	if apiErr, ok := asAPIError(err); ok && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return err
}

// ListRecentEmails lists recent messages, optionally filtered by a Gmail
// search query.
func (c *Client) ListRecentEmails(ctx context.Context, maxResults int, query string) ([]EmailSummary, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(maxResults))
	if query != "" {
		q.Set("query", query)
	}
	var out struct {
		Messages []EmailSummary `json:"messages"`
		Count    int            `json:"count"`
	}
	if err := c.doJSON(ctx, "GET", c.gmailURL+"/messages?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// doJSON issues one request and decodes the JSON answer. Read-only calls may
// retry once on a transport error; mutating calls never do.
func (c *Client) doJSON(ctx context.Context, method, rawurl string, body any, out any, retriable bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	tries := 1
	if retriable {
		tries = 2
	}
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, bodyReader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode/100 == 2 {
				if out != nil {
					lastErr = json.NewDecoder(resp.Body).Decode(out)
				} else {
					lastErr = nil
				}
				return
			}
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			lastErr = &APIError{Code: resp.StatusCode, Body: string(b)}
		}()
		if lastErr == nil {
			return nil
		}
		// 4xx answers are deterministic; retrying them is pointless
		if apiErr, ok := asAPIError(lastErr); ok && apiErr.Code < 500 {
			return lastErr
		}
	}
	return lastErr
}

func defaultCalendar(id string) string {
	if id == "" {
		return "primary"
	}
	return id
}

func asAPIError(err error) (*APIError, bool) {
	if err == nil {
		return nil, false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
