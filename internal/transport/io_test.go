package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/isxgo/internal/transport"
	"github.com/skobkin/isxgo/internal/transport/transporttest"
)

func TestReadUpToCollectsFragments(t *testing.T) {
	port := transporttest.NewPort(nil)
	port.SetChunkSize(2)
	port.Enqueue([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := transport.ReadUpTo(context.Background(), port, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
}

func TestReadUpToReturnsShortOnTimeout(t *testing.T) {
	port := transporttest.NewPort(nil)
	port.Enqueue([]byte{0xB0, 0x01})

	got, err := transport.ReadUpTo(context.Background(), port, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xB0, 0x01}, got)

	got, err = transport.ReadUpTo(context.Background(), port, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadUpToHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transport.ReadUpTo(ctx, transporttest.NewPort(nil), 4)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDrainStopsAtLimit(t *testing.T) {
	port := transporttest.NewPort(nil)
	port.Enqueue(bytes.Repeat([]byte{0xAA}, 1000))

	got, err := transport.Drain(context.Background(), port, 300)
	require.NoError(t, err)
	assert.Len(t, got, 300)

	rest, err := transport.Drain(context.Background(), port, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 700)
}

func TestDrainPropagatesReadError(t *testing.T) {
	port := transporttest.NewPort(nil)
	require.NoError(t, port.Close())

	_, err := transport.Drain(context.Background(), port, 0)
	require.ErrorIs(t, err, transporttest.ErrClosed)
}

type shortWriter struct {
	got []byte
}

func (w *shortWriter) Write(b []byte) (int, error) {
	if len(b) > 2 {
		b = b[:2]
	}
	w.got = append(w.got, b...)

	return len(b), nil
}

type stuckWriter struct{}

func (stuckWriter) Write([]byte) (int, error) { return 0, nil }

func TestWriteFullRetriesShortWrites(t *testing.T) {
	w := &shortWriter{}
	frame := []byte{0xB0, 0x03, 0xFF, 0xFF, 0xFF, 0xB0}

	require.NoError(t, transport.WriteFull(context.Background(), w, frame))
	assert.Equal(t, frame, w.got)

	err := transport.WriteFull(context.Background(), stuckWriter{}, frame)
	assert.True(t, errors.Is(err, io.ErrShortWrite))
}

func TestTracePortPassesThrough(t *testing.T) {
	port := transporttest.NewPort(func(written []byte) []byte {
		return []byte{0x18, 0x01, 0x83, 0x18}
	})
	traced := transport.NewTracePort(port, slog.New(slog.DiscardHandler))

	require.NoError(t, transport.WriteFull(context.Background(), traced, []byte{0xB8, 0x01, 0x00, 0xB8}))
	got, err := transport.ReadUpTo(context.Background(), traced, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x18, 0x01, 0x83, 0x18}, got)

	require.NoError(t, traced.ResetInputBuffer())
	assert.Equal(t, 1, port.Resets())
}
