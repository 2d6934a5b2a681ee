package chat

import (
	"errors"
	"strings"

	"github.com/killallgit/grapher/pkg/sse"
)

var (
	ErrEmptyQuestion = errors.New("question cannot be empty")
	ErrStreamActive  = errors.New("a response is already streaming")
)

// streamSession is the in-flight state of one request
type streamSession struct {
	content  strings.Builder
	thoughts []Thought
	live     []string
	halted   bool
}

// Reducer applies decoded events to a transcript, producing a new snapshot
// per event. It is not safe for concurrent use; callers apply events in
// decode order from a single goroutine.
type Reducer struct {
	transcript Transcript
	session    *streamSession
}

// NewReducer creates a reducer over an existing transcript
func NewReducer(t Transcript) *Reducer {
	return &Reducer{transcript: t}
}

// StartTurn appends the user question and an empty assistant placeholder
// and opens a stream session.
func (r *Reducer) StartTurn(question string) (Transcript, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return r.transcript, ErrEmptyQuestion
	}
	if r.session != nil {
		return r.transcript, ErrStreamActive
	}

	r.transcript = AddTurn(r.transcript, NewUserTurn(question), NewAssistantTurn(""))
	r.session = &streamSession{}
	return r.transcript, nil
}

// Apply folds one event into the transcript. The boolean reports whether
// the caller should keep reading the stream; it is false once an error event
// has been applied or when no session is open.
func (r *Reducer) Apply(ev sse.Event) (Transcript, bool) {
	s := r.session
	if s == nil || s.halted {
		return r.transcript, false
	}

	switch {
	case ev.Type == sse.EventChunk:
		s.content.WriteString(ev.Content)
		r.updatePending()

	case ev.IsThought():
		s.thoughts = append(s.thoughts, NewThought(ev))
		s.live = append(s.live, ev.DisplayText())
		r.updatePending()

	case ev.Type == sse.EventError:
		r.replaceResponse(ev.Content)
		return r.transcript, false
	}

	return r.transcript, true
}

// Fail replaces the pending response with message and halts the session
func (r *Reducer) Fail(message string) Transcript {
	if r.session == nil || r.session.halted {
		return r.transcript
	}
	r.replaceResponse(message)
	return r.transcript
}

// Finish closes the session and clears live thoughts. Content is left as
// last applied. Calling it again is a no-op.
func (r *Reducer) Finish() {
	r.session = nil
}

// Reset replaces the transcript, e.g. when switching or clearing conversations
func (r *Reducer) Reset(t Transcript) error {
	if r.session != nil {
		return ErrStreamActive
	}
	r.transcript = t
	return nil
}

func (r *Reducer) Transcript() Transcript {
	return r.transcript
}

// LiveThoughts returns a copy of the thoughts shown while streaming
func (r *Reducer) LiveThoughts() []string {
	if r.session == nil || len(r.session.live) == 0 {
		return nil
	}
	out := make([]string, len(r.session.live))
	copy(out, r.session.live)
	return out
}

// Content returns the text accumulated by the open session
func (r *Reducer) Content() string {
	if r.session == nil {
		return ""
	}
	return r.session.content.String()
}

// Active reports whether a stream session is open
func (r *Reducer) Active() bool {
	return r.session != nil
}

func (r *Reducer) updatePending() {
	if !r.transcript.endsWithAssistant() {
		return
	}
	last, _ := r.transcript.LastTurn()
	last = last.WithContent(r.session.content.String()).WithThoughts(r.session.thoughts)
	r.transcript = ReplaceLast(r.transcript, last)
}

func (r *Reducer) replaceResponse(message string) {
	r.session.halted = true
	if r.transcript.endsWithAssistant() {
		last, _ := r.transcript.LastTurn()
		r.transcript = ReplaceLast(r.transcript, last.WithContent(message))
		return
	}
	r.transcript = AddTurn(r.transcript, NewAssistantTurn(message))
}
