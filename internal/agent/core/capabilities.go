package core

// CapabilitiesDoc returns a human-readable description of the available
// capabilities and their operations. This is embedded into LLM prompts
// so the planner delegates with instructions the executors can act on.
func CapabilitiesDoc() string {
	return webSearchCapabilities() + "\n\n" + googleCapabilities()
}

func webSearchCapabilities() string {
	return `Capability: web_search
Purpose: Retrieve current information from the public web and distill it into findings.
Use for: facts, news, prices, weather, background research, anything not in the user's Google account.
Instruction guidance:
- Phrase the instruction as the information need, not as a URL or a raw query string.
- One information need per step; issue separate steps for unrelated questions.
- Mention recency requirements explicitly (e.g. "as of this week") when they matter.
Result: a findings list (title, url, snippet) plus a short synthesized summary.`
}

func googleCapabilities() string {
	return `Capability: google
Purpose: Read and mutate the user's Google Calendar and Gmail through their connected account.
Operations:
- list_upcoming_events: next events on a calendar (default calendar "primary").
- list_events_in_range: events between a start and end time (RFC3339).
- create_event: create a calendar event with summary, start, end, optional location/description.
- delete_event: delete an event by its id.
- list_recent_emails: recent inbox messages, optionally filtered by a Gmail search query.
Instruction guidance:
- State the single operation wanted and every concrete parameter (dates, titles, event ids).
- For deletions, reference the event id from an earlier step's result; never guess ids.
- Creating an event that an earlier step already created must not be requested again.
Result: typed events or emails plus a short summary; mutations return the affected event.`
}
