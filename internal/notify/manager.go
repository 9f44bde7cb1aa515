// Package notify keeps the per-user notification socket alive and turns its
// frames into challenge events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/retry"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

var ErrMissingUser = errors.New("missing user id")

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

type Config struct {
	BaseURL string

	// Errors are only surfaced once GracePeriod has passed since Connect
	// and more than ErrorAttempts dials have been made.
	GracePeriod   time.Duration
	ErrorAttempts int

	Backoff func() backoff.BackOff
	Now     func() time.Time
	Logger  *zap.Logger

	OnChallenge func(protocol.DuelRequest)
}

// Manager owns at most one notification socket for one user identity.
type Manager struct {
	dialer wsconn.Dialer
	cfg    Config
	log    *zap.Logger

	mu            sync.Mutex
	userID        string
	status        Status
	attempts      int
	suppressUntil time.Time
	lastErr       string
	conn          wsconn.Conn
	stopping      bool
	cancel        context.CancelFunc
	done          chan struct{}
}

func New(dialer wsconn.Dialer, cfg Config) *Manager {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if cfg.ErrorAttempts == 0 {
		cfg.ErrorAttempts = 2
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.Policy{Initial: 3 * time.Second, Max: time.Minute}.New
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		dialer: dialer,
		cfg:    cfg,
		log:    log.Named("notify"),
		status: StatusClosed,
	}
}

// Connect starts keeping a socket open for userID. It is a no-op when the
// same identity is already connected; a different identity replaces the
// current connection.
func (m *Manager) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	url, err := wsconn.JoinURL(m.cfg.BaseURL, "ws", "notifications", userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.cancel != nil {
		running := true
		select {
		case <-m.done:
			running = false
		default:
		}
		if running && m.userID == userID {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		m.log.Info("replacing notification connection", zap.String("from", m.UserID()), zap.String("to", userID))
		if err := m.Teardown(); err != nil {
			m.log.Warn("teardown before replace", zap.Error(err))
		}
		m.mu.Lock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.userID = userID
	m.status = StatusConnecting
	m.attempts = 0
	m.suppressUntil = m.cfg.Now().Add(m.cfg.GracePeriod)
	m.lastErr = ""
	m.stopping = false
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, url, done)
	return nil
}

// Teardown closes the socket with a normal closure and stops reconnecting.
// Safe to call more than once.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.cancel = nil
	m.conn = nil
	m.stopping = cancel != nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}

	// Close before cancelling so the server sees 1000 rather than a
	// context-cancelled read.
	var err error
	if conn != nil {
		err = conn.Close(wsconn.StatusNormalClosure, "teardown")
	}
	cancel()
	<-done

	m.mu.Lock()
	m.status = StatusClosed
	m.mu.Unlock()
	return err
}

func (m *Manager) run(ctx context.Context, url string, done chan struct{}) {
	defer close(done)
	log := m.log.With(zap.String("user_id", m.UserID()))

	b := m.cfg.Backoff()
	b.Reset()

	for {
		attempt := m.beginAttempt()
		log.Debug("dialing", zap.Int("attempt", attempt), zap.String("url", url))

		conn, err := m.dialer.Dial(ctx, url)
		if err != nil {
			if m.stopped(ctx) {
				m.setStatus(StatusClosed)
				return
			}
			m.onError(log, fmt.Errorf("dial: %w", err))
		} else {
			if !m.opened(ctx, conn) {
				_ = conn.Close(wsconn.StatusNormalClosure, "teardown")
				m.setStatus(StatusClosed)
				return
			}
			log.Info("notification socket open")
			b.Reset()

			err = m.readLoop(ctx, log, conn)
			m.dropConn(conn)

			if m.stopped(ctx) {
				_ = conn.Close(wsconn.StatusNormalClosure, "teardown")
				m.setStatus(StatusClosed)
				return
			}
			if wsconn.IsNormalClose(err) {
				log.Info("notification socket closed normally")
				m.setStatus(StatusClosed)
				return
			}
			m.onError(log, err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			log.Warn("reconnect attempts exhausted")
			m.mu.Lock()
			m.status = StatusClosed
			m.lastErr = "notification connection lost: reconnect attempts exhausted"
			m.mu.Unlock()
			return
		}
		log.Debug("reconnect scheduled", zap.Duration("in", wait))
		m.setStatus(StatusConnecting)
		if !retry.Wait(ctx, wait) {
			m.setStatus(StatusClosed)
			return
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, log *zap.Logger, conn wsconn.Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		n, err := protocol.DecodeNotification(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				log.Debug("ignoring notification", zap.Error(err))
			} else {
				log.Warn("dropping malformed notification", zap.Error(err))
			}
			continue
		}

		switch f := n.(type) {
		case protocol.DuelRequest:
			log.Info("duel request received", zap.String("duel_id", f.DuelID), zap.String("requester_id", f.RequesterID))
			if m.cfg.OnChallenge != nil {
				m.cfg.OnChallenge(f)
			}
		case protocol.Welcome:
			log.Info("welcome", zap.String("message", f.Message))
		}
	}
}

func (m *Manager) beginAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	m.status = StatusConnecting
	return m.attempts
}

func (m *Manager) opened(ctx context.Context, conn wsconn.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || m.stopping {
		return false
	}
	m.conn = conn
	m.status = StatusOpen
	m.attempts = 0
	m.lastErr = ""
	return true
}

func (m *Manager) stopped(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ctx.Err() != nil || m.stopping
}

func (m *Manager) dropConn(conn wsconn.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

// onError records a transport failure. It is only surfaced outside the
// initial grace window and after repeated attempts.
func (m *Manager) onError(log *zap.Logger, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	surface := !m.cfg.Now().Before(m.suppressUntil) && m.attempts > m.cfg.ErrorAttempts
	log.Warn("notification socket error",
		zap.Error(err),
		zap.Int("attempts", m.attempts),
		zap.Bool("surfaced", surface),
	)
	if surface {
		m.lastErr = "notification connection failed: " + err.Error()
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}
