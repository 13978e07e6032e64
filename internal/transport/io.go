package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultDrainLimit caps how many bytes Drain discards before giving up.
const DefaultDrainLimit = 64 * 1024

// ReadUpTo reads until n bytes are collected or the port read times out.
// A timeout is not an error; the caller gets whatever arrived.
func ReadUpTo(ctx context.Context, r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return buf[:got], err
		}

		m, err := r.Read(buf[got:])
		got += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return buf[:got], fmt.Errorf("read: %w", err)
		}
		if m == 0 {
			break
		}
	}

	return buf[:got], nil
}

// Drain reads and returns pending input until a read times out or limit
// bytes have been consumed.
func Drain(ctx context.Context, r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultDrainLimit
	}

	var (
		out   []byte
		chunk [256]byte
	)
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		want := min(len(chunk), limit-len(out))
		m, err := r.Read(chunk[:want])
		out = append(out, chunk[:m]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return out, fmt.Errorf("drain: %w", err)
		}
		if m == 0 {
			break
		}
	}

	return out, nil
}

// WriteFull writes the whole buffer, retrying short writes.
func WriteFull(ctx context.Context, w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if m == 0 {
			return io.ErrShortWrite
		}
		buf = buf[m:]
	}

	return nil
}
