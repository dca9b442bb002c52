package core

import (
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side-effects attached to an Event. All fields are
// optional so absence can be distinguished from zero values. The runner
// interprets these after delivery (state persistence, artifact tracking).
type EventActions struct {
	StateDelta    map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta map[string]int `json:"artifact_delta,omitempty"`
}

// Event is the primary unit of communication between steps, the runner and
// external clients. After emission it should be treated as immutable. It
// captures:
//   - Correlation (RunID, ID, Author)
//   - Conversational content (optional role-based Parts)
//   - Pending state mutations (Actions.StateDelta)
//   - Partial / terminal streaming flags
//   - Failure metadata for step-local failures
//
// Content may be nil for control or failure-only events. TurnComplete marks
// the single terminal event of a chain run.
type Event struct {
	ID           string       `json:"id"`
	RunID        string       `json:"run_id"`
	Author       string       `json:"author"`
	Actions      EventActions `json:"actions"`
	Branch       string       `json:"branch,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Content      *Content     `json:"content,omitempty"`
	Partial      *bool        `json:"partial,omitempty"`
	TurnComplete *bool        `json:"turn_complete,omitempty"`
	FailureKind  *FailureKind `json:"failure_kind,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
		Actions:   EventActions{},
	}
}

// NewMessageEvent constructs an assistant-style message event with a single
// text part. Author can be a step name or system identifier.
func NewMessageEvent(author, message string) Event {
	e := NewEvent("", author)
	e.Content = NewTextContent("assistant", message)
	return e
}

// NewPartialEvent constructs a streaming fragment that will be followed by
// further events composing the final step output.
func NewPartialEvent(author, message string) Event {
	e := NewMessageEvent(author, message)
	partial := true
	e.Partial = &partial
	return e
}

// NewUserMessageEvent is a convenience wrapper for a user-authored text message.
func NewUserMessageEvent(runID, message string) Event {
	e := NewEvent(runID, "user")
	e.Content = NewTextContent("user", message)
	return e
}

// NewFailureEvent records a step-local failure as an observable event. The
// message text doubles as the human-readable transcript line.
func NewFailureEvent(author string, f *Failure) Event {
	e := NewMessageEvent(author, f.Message)
	kind := f.Kind
	msg := f.Message
	e.FailureKind = &kind
	e.ErrorMessage = &msg
	return e
}

// NewID generates a unique identifier for events and runs.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// IsTerminal reports whether this event completes the chain run. The runner
// guarantees at most one terminal event per run and synthesizes one if no
// step produced it.
func (e Event) IsTerminal() bool { return e.TurnComplete != nil && *e.TurnComplete }

// MarkTerminal flags the event as the run's terminal event.
func (e *Event) MarkTerminal() {
	done := true
	e.TurnComplete = &done
}

// Text returns the concatenated text of the event content, or "" when the
// event carries no content.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
