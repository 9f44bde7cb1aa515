// Package orchestrator turns duel requests and acceptances made against the
// API gateway into a live duel socket.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/duel"
	"github.com/w1sec0d/courseclash-duels/internal/gateway"
)

// API is the subset of the gateway the orchestrator calls.
type API interface {
	GetUserByEmail(ctx context.Context, email string) (*gateway.User, error)
	RequestDuel(ctx context.Context, requesterID, opponentID string) (gateway.DuelResult, error)
	AcceptDuel(ctx context.Context, duelID string) (gateway.DuelResult, error)
}

// SessionOpener opens the live duel socket; *duel.Client implements it.
type SessionOpener interface {
	Open(ctx context.Context, req duel.OpenRequest) error
}

type searchInput struct {
	Email string `name:"email" validate:"required,email"`
}

type requestInput struct {
	RequesterID string `name:"requester id" validate:"required"`
	OpponentID  string `name:"opponent id" validate:"required,nefield=RequesterID"`
}

type acceptInput struct {
	DuelID   string `name:"duel id" validate:"required"`
	PlayerID string `name:"player id" validate:"required"`
}

type Orchestrator struct {
	api      API
	sessions SessionOpener
	playerID string
	validate *validator.Validate
	log      *zap.Logger

	mu         sync.Mutex
	duelID     string
	opponentID string
	lastErr    string
}

// New builds an orchestrator acting for playerID, the local player used when
// accepting duels.
func New(api API, sessions SessionOpener, playerID string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if n := f.Tag.Get("name"); n != "" {
			return n
		}
		return f.Name
	})
	return &Orchestrator{
		api:      api,
		sessions: sessions,
		playerID: playerID,
		validate: v,
		log:      log.Named("orchestrator").With(zap.String("player_id", playerID)),
	}
}

// SearchOpponent looks a user up by email. A miss is a KindNotFound error.
func (o *Orchestrator) SearchOpponent(ctx context.Context, email string) (*gateway.User, error) {
	const op = "search opponent"
	email = strings.TrimSpace(email)
	if err := o.check(op, searchInput{Email: email}); err != nil {
		return nil, err
	}

	u, err := o.api.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, o.fail(&Error{Kind: KindRequestFailed, Op: op, Err: err})
	}
	if u == nil || u.ID == "" {
		return nil, o.fail(&Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("no user with email %q", email)})
	}
	o.clearErr()
	o.log.Info("opponent found", zap.String("opponent_id", u.ID))
	return u, nil
}

// RequestDuel challenges opponentID and opens the duel socket for the
// requester. The duel id is kept even when the socket fails to open.
func (o *Orchestrator) RequestDuel(ctx context.Context, requesterID, opponentID string) (gateway.DuelResult, error) {
	const op = "request duel"
	if err := o.check(op, requestInput{RequesterID: requesterID, OpponentID: opponentID}); err != nil {
		return gateway.DuelResult{}, err
	}

	res, err := o.api.RequestDuel(ctx, requesterID, opponentID)
	if err == nil && res.DuelID == "" {
		err = errors.New("no duel id in response")
	}
	if err != nil {
		return gateway.DuelResult{}, o.fail(&Error{Kind: KindRequestFailed, Op: op, Err: err})
	}

	o.remember(res.DuelID, opponentID)
	o.log.Info("duel requested", zap.String("duel_id", res.DuelID), zap.String("opponent_id", opponentID))
	return res, o.open(ctx, op, duel.OpenRequest{DuelID: res.DuelID, PlayerID: requesterID, OpponentID: opponentID})
}

// AcceptDuel accepts an incoming challenge and opens its socket for the local
// player. It satisfies inbox.Acceptor through AcceptChallenge.
func (o *Orchestrator) AcceptDuel(ctx context.Context, duelID string) (gateway.DuelResult, error) {
	const op = "accept duel"
	if err := o.check(op, acceptInput{DuelID: duelID, PlayerID: o.playerID}); err != nil {
		return gateway.DuelResult{}, err
	}

	res, err := o.api.AcceptDuel(ctx, duelID)
	if err != nil {
		return gateway.DuelResult{}, o.fail(&Error{Kind: KindRequestFailed, Op: op, Err: err})
	}
	if res.DuelID == "" {
		res.DuelID = duelID
	}

	o.remember(res.DuelID, "")
	o.log.Info("duel accepted", zap.String("duel_id", res.DuelID))
	return res, o.open(ctx, op, duel.OpenRequest{DuelID: res.DuelID, PlayerID: o.playerID})
}

// AcceptChallenge is AcceptDuel without the result, for the inbox.
func (o *Orchestrator) AcceptChallenge(ctx context.Context, duelID string) error {
	_, err := o.AcceptDuel(ctx, duelID)
	return err
}

// RetryOpen reopens the socket for the last requested or accepted duel.
func (o *Orchestrator) RetryOpen(ctx context.Context) error {
	const op = "retry duel"
	o.mu.Lock()
	duelID, opponentID := o.duelID, o.opponentID
	o.mu.Unlock()
	if duelID == "" {
		return o.fail(&Error{Kind: KindMissingInput, Op: op, Err: errors.New("no duel to rejoin")})
	}
	if err := o.check(op, acceptInput{DuelID: duelID, PlayerID: o.playerID}); err != nil {
		return err
	}
	return o.open(ctx, op, duel.OpenRequest{DuelID: duelID, PlayerID: o.playerID, OpponentID: opponentID})
}

func (o *Orchestrator) CurrentDuel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duelID
}

func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) open(ctx context.Context, op string, req duel.OpenRequest) error {
	if err := o.sessions.Open(ctx, req); err != nil {
		return o.fail(&Error{Kind: KindSocketError, Op: op, Err: err})
	}
	o.clearErr()
	return nil
}

func (o *Orchestrator) check(op string, in any) error {
	err := o.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		err = errors.New(strings.Join(msgs, "; "))
	}
	return o.fail(&Error{Kind: KindMissingInput, Op: op, Err: err})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "nefield":
		return "you cannot challenge yourself"
	}
	return fe.Field() + " is invalid"
}

func (o *Orchestrator) fail(e *Error) error {
	o.log.Warn("duel orchestration failed", zap.String("op", e.Op), zap.String("kind", string(e.Kind)), zap.Error(e.Err))
	o.mu.Lock()
	o.lastErr = e.Message()
	o.mu.Unlock()
	return e
}

func (o *Orchestrator) clearErr() {
	o.mu.Lock()
	o.lastErr = ""
	o.mu.Unlock()
}

func (o *Orchestrator) remember(duelID, opponentID string) {
	o.mu.Lock()
	o.duelID = duelID
	o.opponentID = opponentID
	o.mu.Unlock()
}
