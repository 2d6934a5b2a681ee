package chat

import (
	"slices"
	"strings"
	"time"

	"github.com/killallgit/grapher/pkg/sse"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ThoughtKind mirrors the decoded event types that describe backend progress
type ThoughtKind string

const (
	ThoughtLegacy ThoughtKind = ThoughtKind(sse.EventThought)
	ThoughtAgent  ThoughtKind = ThoughtKind(sse.EventAgentThought)
	ThoughtTool   ThoughtKind = ThoughtKind(sse.EventToolStart)
	ThoughtResult ThoughtKind = ThoughtKind(sse.EventToolResult)
)

// Thought is one progress event attached to an assistant turn
type Thought struct {
	Kind     ThoughtKind `json:"type"`
	Text     string      `json:"content"`
	Icon     string      `json:"icon,omitempty"`
	Label    string      `json:"label,omitempty"`
	ToolName string      `json:"tool_name,omitempty"`
}

// NewThought converts a decoded thought event
func NewThought(ev sse.Event) Thought {
	return Thought{
		Kind:     ThoughtKind(ev.Type),
		Text:     ev.DisplayText(),
		Icon:     ev.Icon,
		Label:    ev.Label,
		ToolName: ev.ToolName,
	}
}

// Turn is one message in a transcript
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Thoughts  []Thought `json:"thoughts,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserTurn(content string) Turn {
	return Turn{
		Role:      RoleUser,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now(),
	}
}

func NewAssistantTurn(content string) Turn {
	return Turn{
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func (t Turn) IsUser() bool {
	return t.Role == RoleUser
}

func (t Turn) IsAssistant() bool {
	return t.Role == RoleAssistant
}

func (t Turn) HasThoughts() bool {
	return len(t.Thoughts) > 0
}

func (t Turn) IsEmpty() bool {
	return strings.TrimSpace(t.Content) == ""
}

// WithContent returns a copy of t carrying content
func (t Turn) WithContent(content string) Turn {
	t.Thoughts = slices.Clone(t.Thoughts)
	t.Content = content
	return t
}

// WithThoughts returns a copy of t carrying its own copy of thoughts.
// An empty list leaves the field nil.
func (t Turn) WithThoughts(thoughts []Thought) Turn {
	if len(thoughts) == 0 {
		t.Thoughts = nil
		return t
	}
	t.Thoughts = slices.Clone(thoughts)
	return t
}
