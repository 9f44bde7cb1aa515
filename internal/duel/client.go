// Package duel runs the live quiz socket for one duel and player.
//
// All session state is owned by a single loop goroutine; socket reads,
// writes and dials run in helper goroutines that post results back to the
// loop's inbox, so frames and user actions are applied one at a time.
package duel

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/quiz"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

var (
	ErrMissingDuel      = errors.New("missing duel id")
	ErrMissingPlayer    = errors.New("missing player id")
	ErrNotOpen          = errors.New("duel socket not open")
	ErrNoActiveQuestion = errors.New("no active question")
	ErrAlreadyAnswered  = quiz.ErrAlreadyAnswered
	ErrQuestionExpired  = errors.New("question time expired")
	ErrUnknownOption    = errors.New("option not offered for this question")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrSuperseded       = errors.New("superseded by a newer duel")
	ErrSocket           = errors.New("duel socket failed")
	ErrShutdown         = errors.New("duel client shut down")
)

type Config struct {
	BaseURL string

	// DefaultTotal is the question count used until the server sends one.
	DefaultTotal int
	WriteTimeout time.Duration

	// Resume schedules redials after an abnormal close. Nil disables resume.
	Resume func() backoff.BackOff

	Now    func() time.Time
	Logger *zap.Logger
}

type Client struct {
	dialer wsconn.Dialer
	cfg    Config
	log    *zap.Logger

	inbox  chan msg
	watch  chan View
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// loop-owned
	gen int
	s   *session
}

type session struct {
	req     OpenRequest
	state   State
	conn    wsconn.Conn
	out     chan []byte
	stopIO  context.CancelFunc
	q       *quiz.Question
	expires time.Time
	tracker *quiz.Tracker
	lastErr string
	resume  backoff.BackOff
	log     *zap.Logger
}

func New(dialer wsconn.Dialer, cfg Config) *Client {
	if cfg.DefaultTotal <= 0 {
		cfg.DefaultTotal = 5
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		dialer: dialer,
		cfg:    cfg,
		log:    log.Named("duel"),
		inbox:  make(chan msg, 64),
		watch:  make(chan View, 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// Open starts a session for the duel, closing any previous one first, and
// returns once the socket is open or has failed.
func (c *Client) Open(ctx context.Context, req OpenRequest) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, openReq{req: req, reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// SubmitAnswer sends the chosen option for the current question and counts
// it locally without waiting for an acknowledgement.
func (c *Client) SubmitAnswer(ctx context.Context, option string) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, answerReq{option: option, reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Close ends the current session with a normal closure. The client can open
// another session afterwards.
func (c *Client) Close() error {
	reply := make(chan error, 1)
	if err := c.send(context.Background(), closeReq{reply: reply}); err != nil {
		if errors.Is(err, ErrShutdown) {
			return nil
		}
		return err
	}
	if err := c.await(context.Background(), reply); !errors.Is(err, ErrShutdown) {
		return err
	}
	return nil
}

// State returns the latest snapshot.
func (c *Client) State() View {
	reply := make(chan View, 1)
	if err := c.send(context.Background(), getView{reply: reply}); err != nil {
		return View{State: StateClosed}
	}
	select {
	case v := <-reply:
		return v
	case <-c.done:
		return View{State: StateClosed}
	}
}

// Watch delivers snapshots after every change. A slow reader misses
// intermediate snapshots but always gets the latest one.
func (c *Client) Watch() <-chan View { return c.watch }

// Shutdown closes the session and stops the loop. Safe to call twice.
func (c *Client) Shutdown() error {
	err := c.Close()
	c.cancel()
	<-c.done
	return err
}

func (c *Client) send(ctx context.Context, m msg) error {
	select {
	case <-c.done:
		return ErrShutdown
	default:
	}
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by helper goroutines; it gives up once the loop is gone.
func (c *Client) post(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			if c.s != nil && c.s.state != StateClosed {
				_ = c.closeSession(wsconn.StatusNormalClosure, "shutdown")
			}
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case openReq:
				c.handleOpen(msg)
			case dialResult:
				c.handleDial(msg)
			case frameIn:
				if c.current(msg.gen) {
					c.handleFrame(msg.frame)
					c.publish()
				}
			case connLost:
				if c.current(msg.gen) {
					c.handleLost(msg.err)
					c.publish()
				}
			case writeFailed:
				if c.current(msg.gen) {
					c.s.log.Warn("answer write failed", zap.Error(msg.err))
					c.s.lastErr = "failed to send answer: " + msg.err.Error()
					c.publish()
				}
			case resumeDue:
				if c.current(msg.gen) && c.s.state == StateReconnecting {
					c.dialResume()
				}
			case answerReq:
				msg.reply <- c.handleAnswer(msg.option)
			case closeReq:
				var err error
				if c.s != nil && c.s.state != StateClosed {
					err = c.closeSession(wsconn.StatusNormalClosure, "closed by player")
					c.publish()
				}
				msg.reply <- err
			case getView:
				msg.reply <- c.view()
			}
		}
	}
}

// current reports whether a helper's result belongs to the live session.
func (c *Client) current(gen int) bool {
	return gen == c.gen && c.s != nil && c.s.state != StateClosed
}

func (c *Client) handleOpen(m openReq) {
	if m.req.DuelID == "" {
		m.reply <- ErrMissingDuel
		return
	}
	if m.req.PlayerID == "" {
		m.reply <- ErrMissingPlayer
		return
	}

	if c.s != nil && c.s.state != StateClosed {
		if err := c.closeSession(wsconn.StatusNormalClosure, "new duel"); err != nil {
			c.s.log.Warn("closing previous duel socket", zap.Error(err))
		}
	}

	if m.req.OpponentID == "" {
		m.req.OpponentID = OpponentPlaceholder
	}
	c.gen++
	c.s = &session{
		req:     m.req,
		state:   StateConnecting,
		tracker: quiz.NewTracker(c.cfg.DefaultTotal),
		log:     c.log.With(zap.String("duel_id", m.req.DuelID), zap.String("player_id", m.req.PlayerID)),
	}
	if c.cfg.Resume != nil {
		c.s.resume = c.cfg.Resume()
		c.s.resume.Reset()
	}

	url, err := wsconn.JoinURL(c.cfg.BaseURL, "ws", "duels", m.req.DuelID, m.req.PlayerID)
	if err != nil {
		c.s.state = StateClosed
		c.s.lastErr = err.Error()
		c.publish()
		m.reply <- fmt.Errorf("%w: %v", ErrSocket, err)
		return
	}

	c.s.log.Info("opening duel socket", zap.Int("gen", c.gen))
	c.publish()
	go c.dial(c.gen, url, m.reply)
}

func (c *Client) handleDial(m dialResult) {
	if !c.current(m.gen) {
		if m.conn != nil {
			_ = m.conn.Close(wsconn.StatusNormalClosure, "superseded")
		}
		if m.reply != nil {
			m.reply <- ErrSuperseded
		}
		return
	}

	s := c.s
	if m.err != nil {
		if m.reply != nil {
			s.log.Warn("duel socket failed to open", zap.Error(m.err))
			s.state = StateClosed
			s.lastErr = "could not connect to the duel: " + m.err.Error()
			c.publish()
			m.reply <- fmt.Errorf("%w: %v", ErrSocket, m.err)
			return
		}
		s.log.Warn("duel resume failed", zap.Error(m.err))
		c.scheduleResume()
		c.publish()
		return
	}

	s.conn = m.conn
	s.state = StateWaitingForQuestion
	s.lastErr = ""
	if s.resume != nil {
		s.resume.Reset()
	}
	c.startIO(m.gen, m.conn)
	s.log.Info("duel socket open")
	c.publish()
	if m.reply != nil {
		m.reply <- nil
	}
}

func (c *Client) handleFrame(f protocol.ServerFrame) {
	s := c.s
	switch f := f.(type) {
	case protocol.Question:
		if s.q != nil && !s.tracker.Answered(s.q.ID) {
			s.log.Info("question replaced before it was answered",
				zap.String("orphaned", s.q.ID), zap.String("question_id", f.Data.ID))
		}
		q := toQuestion(f.Data)
		s.q = &q
		s.tracker.SetTotal(q.Total)
		s.expires = time.Time{}
		if q.TimeLimit > 0 {
			s.expires = c.cfg.Now().Add(q.TimeLimit)
		}
		s.lastErr = ""
		s.state = StateAwaitingAnswer

	case protocol.OpponentProgress:
		s.tracker.ApplyOpponent(f.Progress)
		if f.PlayerID != "" && f.PlayerID != s.req.PlayerID && s.req.OpponentID == OpponentPlaceholder {
			s.req.OpponentID = f.PlayerID
		}

	case protocol.ServerError:
		s.log.Warn("duel service error", zap.String("message", f.Message))
		s.lastErr = f.Message
		s.state = StateError
	}
}

func (c *Client) handleAnswer(option string) error {
	s := c.s
	if s == nil || !s.state.connected() || s.conn == nil {
		return ErrNotOpen
	}
	if s.q == nil {
		return ErrNoActiveQuestion
	}
	q := s.q
	if s.tracker.Answered(q.ID) {
		return ErrAlreadyAnswered
	}
	if !s.expires.IsZero() && !c.cfg.Now().Before(s.expires) {
		return ErrQuestionExpired
	}
	if !slices.Contains(q.Options, option) {
		return ErrUnknownOption
	}

	payload, err := protocol.Encode(protocol.Answer{QuestionID: q.ID, Answer: option})
	if err != nil {
		return err
	}
	select {
	case s.out <- payload:
	default:
		return ErrSendQueueFull
	}

	if err := s.tracker.RecordAnswer(q.ID); err != nil {
		return err
	}
	s.q = nil
	s.expires = time.Time{}
	s.state = StateWaitingForQuestion
	s.log.Debug("answer sent", zap.String("question_id", q.ID))
	c.publish()
	return nil
}

func (c *Client) handleLost(err error) {
	s := c.s
	c.stopIO(wsconn.StatusNormalClosure, "")

	if wsconn.IsNormalClose(err) {
		s.log.Info("duel socket closed by server")
		s.state = StateClosed
		return
	}
	s.log.Warn("duel socket lost", zap.Error(err))
	if s.resume == nil {
		s.state = StateClosed
		s.lastErr = "connection lost"
		return
	}
	c.scheduleResume()
}

func (c *Client) scheduleResume() {
	s := c.s
	wait := s.resume.NextBackOff()
	if wait == backoff.Stop {
		s.log.Warn("giving up on duel resume")
		s.state = StateClosed
		s.lastErr = "connection lost"
		return
	}
	s.state = StateReconnecting
	gen := c.gen
	s.log.Debug("duel resume scheduled", zap.Duration("in", wait))
	time.AfterFunc(wait, func() { c.post(resumeDue{gen: gen}) })
}

func (c *Client) dialResume() {
	s := c.s
	url, err := wsconn.JoinURL(c.cfg.BaseURL, "ws", "duels", s.req.DuelID, s.req.PlayerID)
	if err != nil {
		s.state = StateClosed
		s.lastErr = err.Error()
		c.publish()
		return
	}
	if last := s.tracker.LastAnswered(); last != "" {
		url += "?resume=" + neturl.QueryEscape(last)
	}
	go c.dial(c.gen, url, nil)
}

// closeSession closes the socket and marks the session Closed.
func (c *Client) closeSession(code wsconn.StatusCode, reason string) error {
	err := c.stopIO(code, reason)
	c.s.state = StateClosed
	c.s.q = nil
	c.s.log.Info("duel session closed", zap.String("reason", reason))
	return err
}

// stopIO closes the conn before cancelling the helpers so the peer sees the
// given close code.
func (c *Client) stopIO(code wsconn.StatusCode, reason string) error {
	s := c.s
	var err error
	if s.conn != nil {
		err = s.conn.Close(code, reason)
		s.conn = nil
	}
	if s.stopIO != nil {
		s.stopIO()
		s.stopIO = nil
	}
	return err
}

func (c *Client) view() View {
	s := c.s
	if s == nil {
		return View{State: StateIdle, Progress: quiz.Progress{Total: c.cfg.DefaultTotal}}
	}
	v := View{
		DuelID:     s.req.DuelID,
		PlayerID:   s.req.PlayerID,
		OpponentID: s.req.OpponentID,
		State:      s.state,
		Deadline:   s.expires,
		Progress:   s.tracker.Snapshot(),
		LastError:  s.lastErr,
	}
	if s.q != nil {
		q := *s.q
		q.Options = slices.Clone(s.q.Options)
		v.Question = &q
	}
	return v
}

func (c *Client) publish() {
	v := c.view()
	select {
	case c.watch <- v:
		return
	default:
	}
	// full: drop the oldest so the newest is always available
	select {
	case <-c.watch:
	default:
	}
	select {
	case c.watch <- v:
	default:
	}
}

func toQuestion(d protocol.QuestionData) quiz.Question {
	return quiz.Question{
		ID:        d.ID,
		Text:      d.Text,
		Options:   slices.Clone(d.Options),
		Total:     d.Total,
		TimeLimit: time.Duration(d.TimeLimit) * time.Second,
	}
}
