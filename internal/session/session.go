// Package session wires the notification socket, challenge inbox, duel
// orchestration and duel socket for one signed-in player.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/config"
	"github.com/w1sec0d/courseclash-duels/internal/duel"
	"github.com/w1sec0d/courseclash-duels/internal/gateway"
	"github.com/w1sec0d/courseclash-duels/internal/inbox"
	"github.com/w1sec0d/courseclash-duels/internal/notify"
	"github.com/w1sec0d/courseclash-duels/internal/orchestrator"
	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/retry"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

var ErrMissingUser = errors.New("session needs a user id")

type Options struct {
	UserID     string
	AuthToken  string
	GraphQLURL string
	WSBaseURL  string

	Notify config.Notify
	Duel   config.Duel

	// Dialer and HTTPClient default to real network clients.
	Dialer     wsconn.Dialer
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// FromSettings maps loaded configuration to Options.
func FromSettings(s config.Settings) Options {
	return Options{
		UserID:     s.UserID,
		AuthToken:  s.AuthToken,
		GraphQLURL: s.GraphQLURL,
		WSBaseURL:  s.WSBaseURL,
		Notify:     s.Notify,
		Duel:       s.Duel,
	}
}

// Session is everything one player needs; nothing here is global.
type Session struct {
	UserID string

	Gateway      *gateway.Client
	Notify       *notify.Manager
	Inbox        *inbox.Inbox
	Duel         *duel.Client
	Orchestrator *orchestrator.Orchestrator

	log *zap.Logger
}

// Start builds the session and connects the notification socket. Close
// releases both sockets.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.UserID == "" {
		return nil, ErrMissingUser
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("user_id", opts.UserID))

	dialer := opts.Dialer
	if dialer == nil {
		d := &wsconn.WebsocketDialer{HTTPClient: opts.HTTPClient}
		if opts.AuthToken != "" {
			d.Header = http.Header{"Authorization": {"Bearer " + opts.AuthToken}}
		}
		dialer = d
	}

	s := &Session{UserID: opts.UserID, log: log.Named("session")}

	s.Gateway = gateway.New(gateway.Config{
		URL:        opts.GraphQLURL,
		Token:      opts.AuthToken,
		HTTPClient: opts.HTTPClient,
		Logger:     log,
	})

	duelCfg := duel.Config{
		BaseURL:      opts.WSBaseURL,
		DefaultTotal: opts.Duel.DefaultTotalQuestions,
		WriteTimeout: opts.Duel.WriteTimeout,
		Logger:       log,
	}
	if opts.Duel.ResumeAttempts > 0 {
		duelCfg.Resume = retry.Policy{
			Initial:     time.Second,
			Max:         10 * time.Second,
			MaxAttempts: opts.Duel.ResumeAttempts,
		}.New
	}
	s.Duel = duel.New(dialer, duelCfg)

	s.Orchestrator = orchestrator.New(s.Gateway, s.Duel, opts.UserID, log)
	s.Inbox = inbox.New(inbox.AcceptorFunc(s.Orchestrator.AcceptChallenge), log)

	notifyCfg := notify.Config{
		BaseURL:       opts.WSBaseURL,
		GracePeriod:   opts.Notify.GracePeriod,
		ErrorAttempts: opts.Notify.ErrorAttempts,
		Logger:        log,
		OnChallenge:   s.onChallenge,
	}
	if opts.Notify.ReconnectInitial > 0 {
		notifyCfg.Backoff = retry.Policy{
			Initial:     opts.Notify.ReconnectInitial,
			Max:         opts.Notify.ReconnectMax,
			MaxAttempts: opts.Notify.ReconnectMaxAttempts,
		}.New
	}
	s.Notify = notify.New(dialer, notifyCfg)

	if err := s.Notify.Connect(ctx, opts.UserID); err != nil {
		return nil, multierr.Append(err, s.Duel.Shutdown())
	}
	s.log.Info("session started")
	return s, nil
}

func (s *Session) onChallenge(r protocol.DuelRequest) {
	s.Inbox.Enqueue(inbox.Challenge{
		DuelID:        r.DuelID,
		RequesterID:   r.RequesterID,
		RequesterName: r.RequesterName,
	})
}

// Close tears down the notification socket and the duel socket. Neither
// depends on the other.
func (s *Session) Close() error {
	err := multierr.Combine(
		s.Notify.Teardown(),
		s.Duel.Shutdown(),
	)
	s.log.Info("session closed", zap.Error(err))
	return err
}
