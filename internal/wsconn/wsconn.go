// Package wsconn is the seam between the socket clients and the websocket
// library, so session logic can run against in-memory connections in tests.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

type StatusCode = websocket.StatusCode

const (
	StatusNormalClosure = websocket.StatusNormalClosure
	StatusGoingAway     = websocket.StatusGoingAway
)

// Conn is one open text-frame socket.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Close(code StatusCode, reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// CloseCode returns the close status carried by a read error, or -1 when the
// connection dropped without a close frame.
func CloseCode(err error) StatusCode {
	return websocket.CloseStatus(err)
}

// IsNormalClose reports whether err is a deliberate close (1000).
func IsNormalClose(err error) bool {
	return CloseCode(err) == StatusNormalClosure
}

// CloseError builds the error a peer close produces; handy for fakes.
func CloseError(code StatusCode, reason string) error {
	return websocket.CloseError{Code: code, Reason: reason}
}

// WebsocketDialer dials real sockets with github.com/coder/websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	ReadLimit  int64
}

func (d WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", rawURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &socket{c: c}, nil
}

type socket struct {
	c *websocket.Conn
}

// Read skips binary frames; both sockets carry JSON text only.
func (s *socket) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := s.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (s *socket) Write(ctx context.Context, payload []byte) error {
	return s.c.Write(ctx, websocket.MessageText, payload)
}

func (s *socket) Close(code StatusCode, reason string) error {
	return s.c.Close(code, reason)
}

// JoinURL appends escaped path segments to a ws(s) base URL.
func JoinURL(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			return "", errors.New("empty path segment")
		}
		escaped[i] = url.PathEscape(seg)
	}
	return u.JoinPath(escaped...).String(), nil
}
