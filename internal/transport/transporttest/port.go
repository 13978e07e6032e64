// Package transporttest provides an in-memory instrument port for tests.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skobkin/isxgo/internal/transport"
)

var ErrClosed = errors.New("port closed")

// Responder returns the bytes the instrument sends back after a write.
type Responder func(written []byte) []byte

// Port is a scripted transport.Port. Reads with nothing pending sleep for
// IdleDelay and return 0 bytes, like a serial driver read timeout.
type Port struct {
	mu        sync.Mutex
	respond   Responder
	pending   bytes.Buffer
	writes    [][]byte
	resets    int
	closed    bool
	chunkSize int

	IdleDelay time.Duration
}

func NewPort(respond Responder) *Port {
	return &Port{respond: respond, IdleDelay: time.Millisecond}
}

// SetChunkSize limits how many bytes a single Read returns.
func (p *Port) SetChunkSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunkSize = n
}

// Enqueue makes b available to subsequent reads.
func (p *Port) Enqueue(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Write(b)
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}

	frame := bytes.Clone(b)
	p.writes = append(p.writes, frame)
	if p.respond != nil {
		p.pending.Write(p.respond(frame))
	}

	return len(b), nil
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.pending.Len() == 0 {
		delay := p.IdleDelay
		p.mu.Unlock()
		time.Sleep(delay)
		return 0, nil
	}
	if p.chunkSize > 0 && len(b) > p.chunkSize {
		b = b[:p.chunkSize]
	}
	n, _ := p.pending.Read(b)
	p.mu.Unlock()

	return n, nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Reset()
	p.resets++

	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	return nil
}

// Writes returns a copy of every buffer written so far.
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]byte, len(p.writes))
	copy(out, p.writes)

	return out
}

func (p *Port) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resets
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// Opener hands out a fixed port for a set of known names.
type Opener struct {
	Known   []transport.PortInfo
	Port    transport.Port
	OpenErr error
	Opened  []string
}

func (o *Opener) Ports() ([]transport.PortInfo, error) {
	return o.Known, nil
}

func (o *Opener) Open(ctx context.Context, name string) (transport.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	o.Opened = append(o.Opened, name)

	return o.Port, nil
}
