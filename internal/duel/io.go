package duel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

func (c *Client) dial(gen int, url string, reply chan error) {
	c.log.Debug("dialing duel socket", zap.String("url", url), zap.Int("gen", gen))
	conn, err := c.dialer.Dial(c.ctx, url)
	c.post(dialResult{gen: gen, conn: conn, err: err, reply: reply})
}

// startIO spins up the reader and writer for a freshly opened conn.
func (c *Client) startIO(gen int, conn wsconn.Conn) {
	ctx, cancel := context.WithCancel(c.ctx)
	out := make(chan []byte, 8)
	c.s.out = out
	c.s.stopIO = cancel

	go c.reader(ctx, gen, conn)
	go c.writer(ctx, gen, conn, out)
}

func (c *Client) reader(ctx context.Context, gen int, conn wsconn.Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.post(connLost{gen: gen, err: err})
			}
			return
		}

		f, err := protocol.DecodeServerFrame(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				c.log.Debug("ignoring duel frame", zap.Error(err))
			} else {
				c.log.Warn("dropping malformed duel frame", zap.Error(err))
			}
			continue
		}
		c.post(frameIn{gen: gen, frame: f})
	}
}

func (c *Client) writer(ctx context.Context, gen int, conn wsconn.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-out:
			wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := conn.Write(wctx, payload)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.post(writeFailed{gen: gen, err: err})
			}
		}
	}
}
