package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListUpcomingEventsDefaultsCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/upcoming" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("calendar_id"); got != "primary" {
			t.Errorf("expected calendar_id=primary, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"events": []Event{
			{ID: "e1", Summary: "standup", Start: EventTime{DateTime: "2026-09-01T09:00:00Z", TimeZone: "UTC"}},
			{ID: "e2", Summary: "review", Start: EventTime{Date: "2026-09-02"}},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	events, err := c.ListUpcomingEvents(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("ListUpcomingEvents: %v", err)
	}
	if len(events) != 2 || events[0].ID != "e1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestListUpcomingEventsIsRepeatable(t *testing.T) {
	fixed := []Event{{ID: "e1", Summary: "standup"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"events": fixed})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	first, err := c.ListUpcomingEvents(context.Background(), 5, "primary")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	second, err := c.ListUpcomingEvents(context.Background(), 5, "primary")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("expected identical result sets, got %+v vs %+v", first, second)
	}
}

func TestCreateEventIsNeverRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	_, err := c.CreateEvent(context.Background(), EventInput{
		Summary: "dinner",
		Start:   EventTime{DateTime: "2026-09-01T19:00:00Z", TimeZone: "UTC"},
		End:     EventTime{DateTime: "2026-09-01T21:00:00Z", TimeZone: "UTC"},
	})
	if err == nil {
		t.Fatalf("expected error from 500")
	}
	if calls != 1 {
		t.Fatalf("create must not be retried, saw %d calls", calls)
	}
}

func TestReadRetriesOnceOn5xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []EmailSummary{{ID: "m1", Subject: "hi"}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	msgs, err := c.ListRecentEmails(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("ListRecentEmails: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, saw %d calls", calls)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestDeleteEventMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		http.Error(w, "no such event", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	err := c.DeleteEvent(context.Background(), "missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIErrorPreservesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	_, err := c.ListUpcomingEvents(context.Background(), 3, "primary")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.Code)
	}
}
