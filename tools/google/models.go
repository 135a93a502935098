package google

// EventTime carries either a timed or an all-day boundary, never both.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"` // RFC3339
	Date     string `json:"date,omitempty"`     // YYYY-MM-DD, all-day
	TimeZone string `json:"timeZone,omitempty"`
}

// Event is the calendar record shape exposed by the wrapper server.
type Event struct {
	ID          string    `json:"id"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Status      string    `json:"status,omitempty"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// EventInput is the payload for creating an event. Repeated creates with an
// identical payload produce duplicates upstream, so callers must not re-issue.
type EventInput struct {
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// EmailSummary is one entry from the Gmail wrapper's message listing.
type EmailSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Snippet string `json:"snippet"`
}
