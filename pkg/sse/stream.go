package sse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/killallgit/grapher/pkg/logger"
)

var (
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrUnknownType      = errors.New("unknown event type")
	ErrMissingContent   = errors.New("missing event content")

	// ErrStop may be returned by a Handler to end decoding without error
	ErrStop = errors.New("stop decoding")
)

const readSize = 4096

// Handler receives decoded events one at a time
type Handler func(Event) error

// Decode reads r until EOF, feeding a Decoder and delivering each event to h.
//
// Decoding ends with a nil error on EOF, after an error event has been
// delivered, or when h returns ErrStop. A cancelled ctx yields ctx.Err(),
// including when the cancellation surfaces as a failed read.
func Decode(ctx context.Context, r io.Reader, h Handler) error {
	dec := NewDecoder()
	buf := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := h(ev); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
				if ev.IsTerminal() {
					return nil
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if tail := dec.Pending(); len(tail) > 0 {
					logger.WithComponent("sse").Debug("Discarding unterminated frame", "bytes", len(tail))
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("stream read failed: %w", readErr)
		}
	}
}
