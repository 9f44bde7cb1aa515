package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/sim/engine"
	"github.com/w1sec0d/courseclash-duels/internal/sim/hub"
	"github.com/w1sec0d/courseclash-duels/internal/sim/match"
	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
)

// Schema is the slice of the platform gateway the duel client calls.
const Schema = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	getUserByEmail(email: String!): User
}

type Mutation {
	requestDuel(input: DuelRequestInput!): DuelResult!
	acceptDuel(input: AcceptDuelInput!): DuelResult!
}

type User {
	id: ID!
	name: String!
	email: String!
}

type DuelResult {
	duelId: ID!
	message: String!
}

input DuelRequestInput {
	requesterId: ID!
	opponentId: ID!
}

input AcceptDuelInput {
	duelId: ID!
}
`

var (
	ErrUnknownUser = errors.New("unknown user")
	ErrSelfDuel    = errors.New("cannot challenge yourself")
	ErrNoSuchDuel  = errors.New("duel not found")

	ErrShuttingDown = errors.New("simulator is shutting down")
)

type resolver struct {
	hub      *hub.Hub
	bank     questions.Bank
	users    *Directory
	perDuel  int
	limitSec int
	log      *zap.Logger
}

func (r *resolver) GetUserByEmail(_ context.Context, args struct{ Email string }) *userResolver {
	u, ok := r.users.ByEmail(args.Email)
	if !ok {
		return nil
	}
	return &userResolver{u}
}

type duelRequestInput struct {
	RequesterID graphql.ID
	OpponentID  graphql.ID
}

func (r *resolver) RequestDuel(ctx context.Context, args struct{ Input duelRequestInput }) (*duelResultResolver, error) {
	requesterID, opponentID := string(args.Input.RequesterID), string(args.Input.OpponentID)
	if requesterID == opponentID {
		return nil, ErrSelfDuel
	}
	requester, ok := r.users.ByID(requesterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, requesterID)
	}
	if _, ok := r.users.ByID(opponentID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, opponentID)
	}

	qs, err := r.bank.Draw(ctx, r.perDuel)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}

	id := uuid.NewString()
	reply := make(chan *match.Match, 1)
	state := engine.NewState(qs, engine.Rules{TimeLimitSec: r.limitSec}, requesterID, opponentID)
	if err := r.post(ctx, hub.CreateMatch{ID: id, State: state, Reply: reply}); err != nil {
		return nil, err
	}
	if _, err := await(ctx, r.hub, reply); err != nil {
		return nil, err
	}

	delivered := make(chan int, 1)
	if err := r.post(ctx, hub.Notify{
		UserID: opponentID,
		Frame:  protocol.DuelRequest{DuelID: id, RequesterID: requesterID, RequesterName: requester.Name},
		Reply:  delivered,
	}); err != nil {
		return nil, err
	}
	n, err := await(ctx, r.hub, delivered)
	if err != nil {
		return nil, err
	}
	r.log.Info("duel requested",
		zap.String("duel_id", id),
		zap.String("requester_id", requesterID),
		zap.String("opponent_id", opponentID),
		zap.Int("notified", n),
	)

	msg := "duel requested"
	if n == 0 {
		msg = "duel requested; opponent is offline"
	}
	return &duelResultResolver{id: id, message: msg}, nil
}

func (r *resolver) AcceptDuel(ctx context.Context, args struct{ Input struct{ DuelID graphql.ID } }) (*duelResultResolver, error) {
	id := string(args.Input.DuelID)
	reply := make(chan *match.Match, 1)
	if err := r.post(ctx, hub.GetMatch{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	m, err := await(ctx, r.hub, reply)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchDuel, id)
	}
	r.log.Info("duel accepted", zap.String("duel_id", id))
	return &duelResultResolver{id: id, message: "duel accepted"}, nil
}

func (r *resolver) post(ctx context.Context, msg hub.HubMsg) error {
	select {
	case r.hub.Inbox() <- msg:
		return nil
	case <-r.hub.Done():
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await reads a hub reply. A message queued just before shutdown is never
// answered, so it also gives up when the hub stops.
func await[T any](ctx context.Context, h *hub.Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.Done():
		return zero, ErrShuttingDown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type userResolver struct{ u User }

func (r *userResolver) ID() graphql.ID { return graphql.ID(r.u.ID) }
func (r *userResolver) Name() string   { return r.u.Name }
func (r *userResolver) Email() string  { return r.u.Email }

type duelResultResolver struct {
	id      string
	message string
}

func (r *duelResultResolver) DuelID() graphql.ID { return graphql.ID(r.id) }
func (r *duelResultResolver) Message() string    { return r.message }

func timeLimitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
