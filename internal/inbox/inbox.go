// Package inbox holds pending duel invitations until the user acts on them.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("challenge not found")
var ErrMissingDuel = errors.New("missing duel id")

type Challenge struct {
	ID            uuid.UUID // receipt id, local only
	DuelID        string
	RequesterID   string
	RequesterName string
	ReceivedAt    time.Time
}

// Acceptor is whatever turns an accepted challenge into a live duel.
type Acceptor interface {
	AcceptDuel(ctx context.Context, duelID string) error
}

// retryable is implemented by acceptor errors that leave the duel
// acceptable, such as a gateway request that never went through.
type retryable interface{ Retryable() bool }

// Inbox is a received-order queue of challenges, unique by duel id.
type Inbox struct {
	acceptor Acceptor
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	pending []Challenge
	notify  chan struct{}
}

func New(acceptor Acceptor, log *zap.Logger) *Inbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inbox{
		acceptor: acceptor,
		now:      time.Now,
		log:      log.Named("inbox"),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends a challenge. A second challenge for a duel already in the
// inbox is dropped and Enqueue reports false.
func (in *Inbox) Enqueue(c Challenge) bool {
	if c.DuelID == "" {
		in.log.Warn("dropping challenge without duel id", zap.String("requester_id", c.RequesterID))
		return false
	}

	in.mu.Lock()
	for _, p := range in.pending {
		if p.DuelID == c.DuelID {
			in.mu.Unlock()
			in.log.Debug("duplicate challenge", zap.String("duel_id", c.DuelID))
			return false
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = in.now()
	}
	in.pending = append(in.pending, c)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
	return true
}

// Accept removes the challenge and hands its duel to the acceptor. When the
// acceptor fails with a retryable error the challenge goes back to its slot.
func (in *Inbox) Accept(ctx context.Context, duelID string) error {
	if duelID == "" {
		return ErrMissingDuel
	}
	c, at, ok := in.remove(duelID)
	if !ok {
		return fmt.Errorf("accept %s: %w", duelID, ErrNotFound)
	}
	in.log.Info("challenge accepted", zap.String("duel_id", duelID), zap.String("requester_id", c.RequesterID))

	err := in.acceptor.AcceptDuel(ctx, duelID)
	var r retryable
	if errors.As(err, &r) && r.Retryable() {
		in.restore(at, c)
		in.log.Info("accept failed; challenge kept", zap.String("duel_id", duelID), zap.Error(err))
	}
	return err
}

// Reject discards the challenge without contacting the server.
func (in *Inbox) Reject(duelID string) error {
	if duelID == "" {
		return ErrMissingDuel
	}
	if _, _, ok := in.remove(duelID); !ok {
		return fmt.Errorf("reject %s: %w", duelID, ErrNotFound)
	}
	in.log.Info("challenge rejected", zap.String("duel_id", duelID))
	return nil
}

func (in *Inbox) remove(duelID string) (Challenge, int, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, p := range in.pending {
		if p.DuelID == duelID {
			in.pending = append(in.pending[:i], in.pending[i+1:]...)
			return p, i, true
		}
	}
	return Challenge{}, 0, false
}

// restore puts c back at index at unless the duel arrived again meanwhile.
func (in *Inbox) restore(at int, c Challenge) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, p := range in.pending {
		if p.DuelID == c.DuelID {
			return
		}
	}
	in.pending = slices.Insert(in.pending, min(at, len(in.pending)), c)
}

func (in *Inbox) List() []Challenge {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Challenge(nil), in.pending...)
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

// Changed fires (coalesced) whenever a challenge is added.
func (in *Inbox) Changed() <-chan struct{} { return in.notify }

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(ctx context.Context, duelID string) error

func (f AcceptorFunc) AcceptDuel(ctx context.Context, duelID string) error { return f(ctx, duelID) }
