// Package gateway is the GraphQL client for the platform's API gateway.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DuelResult is what both duel mutations return.
type DuelResult struct {
	DuelID  string `json:"duelId"`
	Message string `json:"message"`
}

const (
	getUserByEmailQuery = `query GetUserByEmail($email: String!) {
	getUserByEmail(email: $email) { id name email }
}`

	requestDuelMutation = `mutation RequestDuel($input: DuelRequestInput!) {
	requestDuel(input: $input) { duelId message }
}`

	acceptDuelMutation = `mutation AcceptDuel($input: AcceptDuelInput!) {
	acceptDuel(input: $input) { duelId message }
}`
)

type Config struct {
	URL        string
	Token      string // sent as a bearer token when set
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	gql   *graphql.Client
	token string
	log   *zap.Logger
}

func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var opts []graphql.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, graphql.WithHTTPClient(cfg.HTTPClient))
	}
	c := &Client{
		gql:   graphql.NewClient(cfg.URL, opts...),
		token: cfg.Token,
		log:   log.Named("gateway"),
	}
	c.gql.Log = func(s string) { c.log.Debug(s) }
	return c
}

// GetUserByEmail returns nil without an error when no user matches.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	req := c.request(getUserByEmailQuery)
	req.Var("email", email)

	var resp struct {
		GetUserByEmail *User `json:"getUserByEmail"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("getUserByEmail: %w", err)
	}
	return resp.GetUserByEmail, nil
}

func (c *Client) RequestDuel(ctx context.Context, requesterID, opponentID string) (DuelResult, error) {
	req := c.request(requestDuelMutation)
	req.Var("input", map[string]string{
		"requesterId": requesterID,
		"opponentId":  opponentID,
	})

	var resp struct {
		RequestDuel *DuelResult `json:"requestDuel"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return DuelResult{}, fmt.Errorf("requestDuel: %w", err)
	}
	if resp.RequestDuel == nil {
		return DuelResult{}, fmt.Errorf("requestDuel: empty response")
	}
	return *resp.RequestDuel, nil
}

func (c *Client) AcceptDuel(ctx context.Context, duelID string) (DuelResult, error) {
	req := c.request(acceptDuelMutation)
	req.Var("input", map[string]string{"duelId": duelID})

	var resp struct {
		AcceptDuel *DuelResult `json:"acceptDuel"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return DuelResult{}, fmt.Errorf("acceptDuel: %w", err)
	}
	if resp.AcceptDuel == nil {
		return DuelResult{}, fmt.Errorf("acceptDuel: empty response")
	}
	return *resp.AcceptDuel, nil
}

func (c *Client) request(q string) *graphql.Request {
	req := graphql.NewRequest(q)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req
}
