package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/logger"
	"github.com/killallgit/grapher/pkg/process"
	"github.com/killallgit/grapher/pkg/sse"
)

// FailureMessage replaces the assistant response when the transport fails
const FailureMessage = "Something went wrong while processing your request. Please try again or contact support if the issue persists."

var (
	ErrBusy           = errors.New("a request is already in progress")
	ErrNoProject      = errors.New("no project selected")
	ErrNoSession      = errors.New("no session identity")
	ErrNothingToClear = errors.New("no clear requested")
)

// IdentityFunc resolves the session of a conversation when its first
// message is sent. It receives the current session id, which may be empty.
type IdentityFunc func(sessionID, firstMessage string) (string, error)

// Update is a snapshot published to subscribers after every change
type Update struct {
	Transcript   chat.Transcript
	LiveThoughts []string
	Streaming    bool
	State        process.State
	SessionID    string
}

type Option func(*ChatController)

func WithIdentity(fn IdentityFunc) Option {
	return func(cc *ChatController) {
		cc.identity = fn
	}
}

func WithProject(projectID string) Option {
	return func(cc *ChatController) {
		cc.project = projectID
	}
}

func WithSession(sessionID string, t chat.Transcript) Option {
	return func(cc *ChatController) {
		cc.sessionID = sessionID
		cc.reducer = chat.NewReducer(t)
	}
}

// ChatController drives one conversation: it sends questions, folds the
// streamed answer into the transcript and publishes every snapshot.
// Send blocks for the lifetime of a request; all other methods may be
// called from any goroutine.
type ChatController struct {
	transport client.QueryTransport
	identity  IdentityFunc
	log       *logger.ComponentLogger

	mu           sync.Mutex
	reducer      *chat.Reducer
	state        process.State
	project      string
	sessionID    string
	cancel       context.CancelFunc
	request      uint64
	pendingClear bool
	subscribers  map[int]func(Update)
	nextSub      int
}

func NewChatController(transport client.QueryTransport, opts ...Option) *ChatController {
	cc := &ChatController{
		transport:   transport,
		log:         logger.WithComponent("controller"),
		reducer:     chat.NewReducer(chat.NewTranscript()),
		state:       process.StateIdle,
		subscribers: make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Send asks question and blocks until the answer has finished streaming,
// failed or been stopped. A stopped request is not an error. A failed one
// returns the transport error after the transcript has been updated.
func (cc *ChatController) Send(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return chat.ErrEmptyQuestion
	}

	cc.mu.Lock()
	if cc.state.IsActive() {
		cc.mu.Unlock()
		return ErrBusy
	}
	if cc.project == "" {
		cc.mu.Unlock()
		return ErrNoProject
	}
	ctx, cancel := context.WithCancel(ctx)
	cc.request++
	request := cc.request
	cc.cancel = cancel
	cc.state = process.StateSending
	cc.pendingClear = false
	sessionID := cc.sessionID
	project := cc.project
	first := cc.reducer.Transcript().IsEmpty()
	cc.mu.Unlock()

	if first && cc.identity != nil {
		id, err := cc.identity(sessionID, question)
		if err != nil {
			cc.release(request)
			return fmt.Errorf("failed to establish session: %w", err)
		}
		sessionID = id
	}
	if sessionID == "" {
		cc.release(request)
		return ErrNoSession
	}

	streamID := uuid.NewString()
	cc.log.Info("Sending question", "stream", streamID, "project", project, "session", sessionID)

	cc.mu.Lock()
	cc.sessionID = sessionID
	if _, err := cc.reducer.StartTurn(question); err != nil {
		cc.mu.Unlock()
		cc.release(request)
		return err
	}
	upd := cc.snapshotLocked()
	cc.mu.Unlock()
	cc.publish(upd)

	body, err := cc.transport.Query(ctx, client.QueryRequest{
		Question:  question,
		ProjectID: project,
		SessionID: sessionID,
	})
	if err != nil {
		if ctx.Err() != nil {
			cc.log.Info("Request cancelled before streaming", "stream", streamID)
			cc.finish(request, process.StateCancelled, "")
			return nil
		}
		cc.log.Error("Failed to start stream", "stream", streamID, "error", err)
		cc.finish(request, process.StateFailed, FailureMessage)
		return err
	}
	defer body.Close()

	cc.transition(process.StateStreaming)

	events := 0
	decodeErr := sse.Decode(ctx, body, func(ev sse.Event) error {
		events++
		cc.mu.Lock()
		_, keep := cc.reducer.Apply(ev)
		upd := cc.snapshotLocked()
		cc.mu.Unlock()
		cc.publish(upd)

		if ev.IsTerminal() {
			cc.log.Warn("Backend reported an error", "stream", streamID, "message", ev.Content)
		}
		if !keep {
			return sse.ErrStop
		}
		return nil
	})

	switch {
	case decodeErr == nil:
		cc.log.Info("Stream completed", "stream", streamID, "events", events)
		cc.finish(request, process.StateCompleted, "")
		return nil
	case ctx.Err() != nil:
		cc.log.Info("Stream cancelled", "stream", streamID, "events", events)
		cc.finish(request, process.StateCancelled, "")
		return nil
	default:
		cc.log.Error("Stream failed", "stream", streamID, "events", events, "error", decodeErr)
		cc.finish(request, process.StateFailed, FailureMessage)
		return decodeErr
	}
}

// Stop cancels the in-flight request. It is a no-op when idle.
func (cc *ChatController) Stop() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.cancel != nil {
		cc.cancel()
	}
}

// RequestClear arms a clear of the conversation. It reports false when
// there is nothing to clear or a request is in flight.
func (cc *ChatController) RequestClear() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.state.IsActive() || cc.reducer.Transcript().IsEmpty() {
		cc.pendingClear = false
		return false
	}
	cc.pendingClear = true
	return true
}

// ConfirmClear empties the transcript armed by RequestClear
func (cc *ChatController) ConfirmClear() error {
	cc.mu.Lock()
	if cc.state.IsActive() {
		cc.mu.Unlock()
		return ErrBusy
	}
	if !cc.pendingClear {
		cc.mu.Unlock()
		return ErrNothingToClear
	}
	cc.pendingClear = false
	if err := cc.reducer.Reset(chat.NewTranscript()); err != nil {
		cc.mu.Unlock()
		return err
	}
	upd := cc.snapshotLocked()
	cc.mu.Unlock()

	cc.log.Info("Conversation cleared", "session", upd.SessionID)
	cc.publish(upd)
	return nil
}

func (cc *ChatController) CancelClear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.pendingClear = false
}

// ClearPending reports whether a clear awaits confirmation
func (cc *ChatController) ClearPending() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.pendingClear
}

// Load switches to another conversation. An empty sessionID starts a new
// one that is established on its first message.
func (cc *ChatController) Load(sessionID string, t chat.Transcript) error {
	cc.mu.Lock()
	if cc.state.IsActive() {
		cc.mu.Unlock()
		return ErrBusy
	}
	if err := cc.reducer.Reset(t); err != nil {
		cc.mu.Unlock()
		return err
	}
	cc.sessionID = sessionID
	cc.pendingClear = false
	upd := cc.snapshotLocked()
	cc.mu.Unlock()

	cc.log.Debug("Conversation loaded", "session", sessionID, "turns", t.Len())
	cc.publish(upd)
	return nil
}

// Subscribe registers fn for every published Update. Updates are delivered
// on the goroutine that produced them, in order.
func (cc *ChatController) Subscribe(fn func(Update)) func() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	id := cc.nextSub
	cc.nextSub++
	cc.subscribers[id] = fn

	return func() {
		cc.mu.Lock()
		defer cc.mu.Unlock()
		delete(cc.subscribers, id)
	}
}

func (cc *ChatController) SetProject(projectID string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.project = strings.TrimSpace(projectID)
}

func (cc *ChatController) Project() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.project
}

func (cc *ChatController) SessionID() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.sessionID
}

func (cc *ChatController) State() process.State {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state
}

func (cc *ChatController) Transcript() chat.Transcript {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.reducer.Transcript()
}

func (cc *ChatController) LiveThoughts() []string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.reducer.LiveThoughts()
}

func (cc *ChatController) IsStreaming() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state.IsActive()
}

// Snapshot returns the current Update without publishing it
func (cc *ChatController) Snapshot() Update {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.snapshotLocked()
}

func (cc *ChatController) snapshotLocked() Update {
	return Update{
		Transcript:   cc.reducer.Transcript(),
		LiveThoughts: cc.reducer.LiveThoughts(),
		Streaming:    cc.state.IsActive(),
		State:        cc.state,
		SessionID:    cc.sessionID,
	}
}

func (cc *ChatController) transition(next process.State) {
	cc.mu.Lock()
	if !cc.state.CanTransition(next) {
		cc.log.Warn("Unexpected state transition", "from", cc.state.GetDisplayName(), "to", next.GetDisplayName())
	}
	cc.state = next
	upd := cc.snapshotLocked()
	cc.mu.Unlock()
	cc.publish(upd)
}

// finish ends the request in a terminal state and returns to idle before
// publishing the final snapshot. A non-empty message replaces the response.
func (cc *ChatController) finish(request uint64, terminal process.State, message string) {
	cc.mu.Lock()
	if cc.request != request {
		cc.mu.Unlock()
		cc.log.Warn("Finished request is no longer current", "state", terminal.GetDisplayName())
		return
	}
	if message != "" {
		cc.reducer.Fail(message)
	}
	cc.reducer.Finish()
	if !cc.state.CanTransition(terminal) {
		cc.log.Warn("Unexpected state transition", "from", cc.state.GetDisplayName(), "to", terminal.GetDisplayName())
	}
	cc.state = terminal
	upd := cc.snapshotLocked()
	cc.stopLocked()
	cc.mu.Unlock()

	cc.publish(upd)
}

// release returns to idle when a request is abandoned before its first snapshot
func (cc *ChatController) release(request uint64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.request == request {
		cc.stopLocked()
	}
}

func (cc *ChatController) stopLocked() {
	if cc.cancel != nil {
		cc.cancel()
		cc.cancel = nil
	}
	cc.state = process.StateIdle
}

func (cc *ChatController) publish(upd Update) {
	cc.mu.Lock()
	subs := make([]func(Update), 0, len(cc.subscribers))
	for id := 0; id < cc.nextSub; id++ {
		if fn, ok := cc.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	cc.mu.Unlock()

	for _, fn := range subs {
		fn(upd)
	}
}
