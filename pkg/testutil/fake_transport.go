package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/sse"
)

// Frame renders an event as one SSE frame
func Frame(ev sse.Event) string {
	data, err := json.Marshal(ev)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot encode event: %v", err))
	}
	return "data: " + string(data) + "\n\n"
}

// Frames renders events back to back
func Frames(events ...sse.Event) string {
	out := ""
	for _, ev := range events {
		out += Frame(ev)
	}
	return out
}

// Step is one scripted action of a FakeTransport stream
type Step struct {
	Data  string        // bytes to deliver
	Err   error         // read error to deliver instead of data
	Delay time.Duration // pause before the step
	Wait  chan struct{} // block until closed or the request is cancelled
}

// FakeTransport implements client.QueryTransport by replaying a script
// through an io.Pipe. The stream aborts when the request context ends.
// The nth query plays Scripts[n] when present and Steps otherwise.
type FakeTransport struct {
	StartErr error
	Steps    []Step
	Scripts  [][]Step

	mu       sync.Mutex
	requests []client.QueryRequest
}

// NewFakeTransport creates a transport delivering each fragment as a separate read
func NewFakeTransport(fragments ...string) *FakeTransport {
	steps := make([]Step, len(fragments))
	for i, f := range fragments {
		steps[i] = Step{Data: f}
	}
	return &FakeTransport{Steps: steps}
}

// Query implements client.QueryTransport
func (f *FakeTransport) Query(ctx context.Context, req client.QueryRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	steps := f.Steps
	if n := len(f.requests); n < len(f.Scripts) {
		steps = f.Scripts[n]
	}
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.StartErr != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrStreamStart, f.StartErr)
	}

	pr, pw := io.Pipe()
	go play(ctx, steps, pw)
	return pr, nil
}

func play(ctx context.Context, steps []Step, pw *io.PipeWriter) {
	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
		}

		if step.Wait != nil {
			select {
			case <-step.Wait:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
		}

		if step.Err != nil {
			pw.CloseWithError(step.Err)
			return
		}

		if _, err := pw.Write([]byte(step.Data)); err != nil {
			// Reader went away
			return
		}
	}
	pw.Close()
}

// Requests returns the queries received so far
func (f *FakeTransport) Requests() []client.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]client.QueryRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// ErrConnectionReset is a convenient mid-stream transport failure
var ErrConnectionReset = errors.New("connection reset by peer")

var _ client.QueryTransport = (*FakeTransport)(nil)
