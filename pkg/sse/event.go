package sse

// EventType discriminates decoded stream payloads
type EventType string

const (
	EventChunk        EventType = "chunk"
	EventThought      EventType = "thought"
	EventAgentThought EventType = "agent_thought"
	EventToolStart    EventType = "tool_start"
	EventToolResult   EventType = "tool_result"
	EventError        EventType = "error"
)

// Known reports whether t is one of the payload types the decoder emits
func (t EventType) Known() bool {
	switch t {
	case EventChunk, EventThought, EventAgentThought, EventToolStart, EventToolResult, EventError:
		return true
	default:
		return false
	}
}

// Structured reports whether t carries icon/label/tool metadata
func (t EventType) Structured() bool {
	switch t {
	case EventAgentThought, EventToolStart, EventToolResult:
		return true
	default:
		return false
	}
}

// Event is one decoded application-level event
type Event struct {
	Type     EventType `json:"type"`
	Content  string    `json:"content"`
	Icon     string    `json:"icon,omitempty"`
	Label    string    `json:"label,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
}

// IsThought reports whether the event is any of the thought kinds
func (e Event) IsThought() bool {
	return e.Type == EventThought || e.Type.Structured()
}

// IsTerminal reports whether no further events should be read after e
func (e Event) IsTerminal() bool {
	return e.Type == EventError
}

// DisplayText is the human-readable form shown in live thought lists.
// Structured events are prefixed with their icon when one is present.
func (e Event) DisplayText() string {
	if e.Type.Structured() && e.Icon != "" {
		return e.Icon + " " + e.Content
	}
	return e.Content
}

// Chunk builds a content-delta event
func Chunk(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

// Thought builds a legacy thought event
func Thought(content string) Event {
	return Event{Type: EventThought, Content: content}
}

// Error builds a backend error event
func Error(content string) Event {
	return Event{Type: EventError, Content: content}
}
