package domain

// EventType discriminates frames on the client-facing stream.
type EventType string

const (
	EventStart             EventType = "start"
	EventContent           EventType = "content"
	EventToolStart         EventType = "tool_start"
	EventToolDone          EventType = "tool_done"
	EventCorrectionStart   EventType = "correction_start"
	EventCorrectionReplace EventType = "correction_replace"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// StreamEvent is one frame of the orchestrator's live output. Only the
// fields relevant to the event type are populated.
type StreamEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Content   string    `json:"content,omitempty"`
	Model     string    `json:"model,omitempty"`
	ToolCount int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
}
