// Package wsconntest provides in-memory wsconn implementations for tests.
package wsconntest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

var ErrConnLost = errors.New("connection lost")

// Conn is a scripted socket. The test pushes inbound frames and peer closes;
// the code under test reads, writes and closes it.
type Conn struct {
	URL string

	in   chan []byte
	drop chan error
	done chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closed    bool
	closeCode wsconn.StatusCode
	closes    int
	writeErr  error
}

func NewConn(url string) *Conn {
	return &Conn{
		URL:  url,
		in:   make(chan []byte, 32),
		drop: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case err := <-c.drop:
		return nil, err
	case <-c.done:
		c.mu.Lock()
		code := c.closeCode
		c.mu.Unlock()
		return nil, wsconn.CloseError(code, "closed locally")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), payload...))
	return nil
}

func (c *Conn) Close(code wsconn.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	close(c.done)
	return nil
}

// Push delivers an inbound text frame.
func (c *Conn) Push(frame string) {
	c.in <- []byte(frame)
}

// PeerClose makes the next Read fail as if the server sent a close frame.
func (c *Conn) PeerClose(code wsconn.StatusCode) {
	c.drop <- wsconn.CloseError(code, "peer close")
}

// Fail makes the next Read fail without a close frame.
func (c *Conn) Fail() {
	c.drop <- ErrConnLost
}

func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, wsconn.StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// CloseCalls counts Close invocations, including repeated ones.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Done is closed once the conn has been closed locally.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dialer hands out fresh Conns and records every attempt.
type Dialer struct {
	mu       sync.Mutex
	err      error
	urls     []string
	conns    []*Conn
	dialed   chan *Conn
	attempts chan string
	gate     chan struct{}
}

func NewDialer() *Dialer {
	return &Dialer{
		dialed:   make(chan *Conn, 64),
		attempts: make(chan string, 64),
	}
}

// SetError makes subsequent dials fail with err; nil restores success.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Hold blocks dials until the returned func is called.
func (d *Dialer) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (wsconn.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	gate := d.gate
	d.mu.Unlock()

	select {
	case d.attempts <- url:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c := NewConn(url)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	select {
	case d.dialed <- c:
	default:
	}
	return c, nil
}

func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// NextConn waits for the next successful dial.
func (d *Dialer) NextConn(t *testing.T, within time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for dial")
		return nil
	}
}

// NextAttempt waits for the next dial attempt, successful or not.
func (d *Dialer) NextAttempt(t *testing.T, within time.Duration) string {
	t.Helper()
	select {
	case u := <-d.attempts:
		return u
	case <-time.After(within):
		t.Fatalf("timed out waiting for dial attempt")
		return ""
	}
}

// NoAttempt fails the test if a dial is attempted within the window.
func (d *Dialer) NoAttempt(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case u := <-d.attempts:
		t.Fatalf("expected no dial within %v, got %s", within, u)
	case <-time.After(within):
	}
}
