package testutil

import (
	"context"
	"io"
	"testing"

	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	assert.Equal(t, "data: {\"type\":\"chunk\",\"content\":\"hi\"}\n\n", Frame(sse.Chunk("hi")))
	assert.Equal(t, Frame(sse.Chunk("a"))+Frame(sse.Thought("b")), Frames(sse.Chunk("a"), sse.Thought("b")))
}

func TestFakeTransport(t *testing.T) {
	t.Run("should replay fragments and record requests", func(t *testing.T) {
		ft := NewFakeTransport("data: {\"type\":", "\"chunk\",\"content\":\"x\"}\n\n")

		body, err := ft.Query(context.Background(), client.QueryRequest{Question: "q", ProjectID: "p"})
		require.NoError(t, err)
		data, err := io.ReadAll(body)
		require.NoError(t, err)

		assert.Equal(t, Frame(sse.Chunk("x")), string(data))
		require.Len(t, ft.Requests(), 1)
		assert.Equal(t, "q", ft.Requests()[0].Question)
	})

	t.Run("should fail to start when configured", func(t *testing.T) {
		ft := &FakeTransport{StartErr: assert.AnError}

		_, err := ft.Query(context.Background(), client.QueryRequest{})
		assert.ErrorIs(t, err, client.ErrStreamStart)
	})

	t.Run("should deliver read errors", func(t *testing.T) {
		ft := &FakeTransport{Steps: []Step{{Data: "data: x\n\n"}, {Err: ErrConnectionReset}}}

		body, err := ft.Query(context.Background(), client.QueryRequest{})
		require.NoError(t, err)
		_, err = io.ReadAll(body)
		assert.ErrorIs(t, err, ErrConnectionReset)
	})

	t.Run("should abort a waiting stream on cancellation", func(t *testing.T) {
		ft := &FakeTransport{Steps: []Step{{Wait: make(chan struct{})}}}
		ctx, cancel := context.WithCancel(context.Background())

		body, err := ft.Query(ctx, client.QueryRequest{})
		require.NoError(t, err)
		cancel()

		_, err = io.ReadAll(body)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("should play scripts in query order then fall back to steps", func(t *testing.T) {
		ft := &FakeTransport{
			Steps:   []Step{{Data: "fallback"}},
			Scripts: [][]Step{{{Data: "first"}}, {{Data: "second"}}},
		}

		for _, want := range []string{"first", "second", "fallback"} {
			body, err := ft.Query(context.Background(), client.QueryRequest{})
			require.NoError(t, err)
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, want, string(data))
		}
		assert.Len(t, ft.Requests(), 3)
	})
}
