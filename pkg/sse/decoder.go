package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/killallgit/grapher/pkg/logger"
)

const (
	dataField    = "data:"
	doneSentinel = "[DONE]"
)

// Decoder reassembles blank-line separated frames from arbitrarily
// fragmented input. It holds no transcript state.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a fragment and returns the events of every frame it completed,
// in arrival order. An unterminated tail stays buffered.
func (d *Decoder) Feed(fragment []byte) []Event {
	d.buf = append(d.buf, fragment...)

	var events []Event
	for {
		start, end := frameSeparator(d.buf)
		if start < 0 {
			break
		}

		frame := string(d.buf[:start])
		d.buf = d.buf[end:]

		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}

	// Release the backing array once everything is consumed
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Pending returns a copy of the buffered, not yet terminated input
func (d *Decoder) Pending() []byte {
	return bytes.Clone(d.buf)
}

// Reset discards any buffered input
func (d *Decoder) Reset() {
	d.buf = nil
}

// frameSeparator finds the leftmost match of \r?\n\r?\n and returns its
// bounds, or -1 when the buffer holds no complete frame.
func frameSeparator(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}

		next := i + 1
		if next < len(buf) && buf[next] == '\r' {
			next++
		}
		if next >= len(buf) || buf[next] != '\n' {
			continue
		}

		start := i
		if i > 0 && buf[i-1] == '\r' {
			start = i - 1
		}
		return start, next + 1
	}
	return -1, -1
}

// framePayload joins the data: lines of a frame with \n
func framePayload(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataField) {
			continue
		}
		value := strings.TrimPrefix(line, dataField)
		value = strings.TrimPrefix(value, " ")
		parts = append(parts, value)
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), true
}

func parseFrame(frame string) (Event, bool) {
	payload, ok := framePayload(frame)
	if !ok || payload == "" || payload == doneSentinel {
		return Event{}, false
	}

	ev, err := ParsePayload(payload)
	if err != nil {
		logger.WithComponent("sse").Debug("Skipping frame", "reason", err)
		return Event{}, false
	}
	return ev, true
}

// ParsePayload decodes one joined data payload into an Event
func ParsePayload(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if !ev.Type.Known() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}

	if ev.Content == "" {
		return Event{}, fmt.Errorf("%w: %s event without content", ErrMissingContent, ev.Type)
	}

	if !ev.Type.Structured() {
		ev.Icon, ev.Label, ev.ToolName = "", "", ""
	}
	return ev, nil
}
