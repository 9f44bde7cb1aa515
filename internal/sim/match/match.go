// Package match runs one duel as an actor goroutine that owns the engine
// state and the outboxes of the connected players.
package match

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/sim/engine"
)

type Msg interface{ isMatchMsg() }

// Join registers a player's socket. A second Join for the same player
// replaces (and closes) the earlier outbox.
type Join struct {
	PlayerID   string
	ResumeFrom string
	Outbox     chan protocol.ServerFrame
	Reply      chan error
}

func (Join) isMatchMsg() {}

type Leave struct {
	PlayerID string
	Outbox   chan protocol.ServerFrame
}

func (Leave) isMatchMsg() {}

type FromPlayer struct {
	PlayerID string
	Answer   protocol.Answer
}

func (FromPlayer) isMatchMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isMatchMsg() {}

type Shutdown struct{}

func (Shutdown) isMatchMsg() {}

type timerFired struct {
	PlayerID   string
	QuestionID string
	Gen        int
}

func (timerFired) isMatchMsg() {}

// expiry is how long the server waits before moving a player past a
// question. The slack covers the trip to the client, whose countdown
// starts on receipt. Tests replace it.
var expiry = func(limitSec int) time.Duration {
	return time.Duration(limitSec)*time.Second + time.Second
}

type playerTimer struct {
	t          *time.Timer
	gen        int
	questionID string
}

type View struct {
	Version   int
	Connected []string
	State     engine.State
}

type Match struct {
	id         string
	inbox      chan Msg
	state      engine.State
	version    int
	players    map[string]chan protocol.ServerFrame
	timers     map[string]*playerTimer
	onComplete func(id string)
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// New starts the actor. onComplete, when set, runs on the actor goroutine
// once every player has answered every question.
func New(parent context.Context, id string, initial engine.State, onComplete func(id string), log *zap.Logger) *Match {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	m := &Match{
		id:         id,
		inbox:      make(chan Msg, 64),
		state:      initial,
		players:    make(map[string]chan protocol.ServerFrame),
		timers:     make(map[string]*playerTimer),
		onComplete: onComplete,
		log:        log.Named("match").With(zap.String("duel_id", id)),
		ctx:        ctx,
		cancel:     cancel,
	}

	go m.loop()
	return m
}

func (m *Match) ID() string { return m.id }

// Inbox exposes the actor so the WS layer and tests can send messages.
func (m *Match) Inbox() chan<- Msg { return m.inbox }

// Done is closed once the match stops accepting messages.
func (m *Match) Done() <-chan struct{} { return m.ctx.Done() }

func (m *Match) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Join:
				m.handleJoin(msg)

			case Leave:
				if ch, ok := m.players[msg.PlayerID]; ok && ch == msg.Outbox {
					delete(m.players, msg.PlayerID)
					m.log.Info("player left", zap.String("player_id", msg.PlayerID))
				}

			case FromPlayer:
				m.handleAnswer(msg)

			case timerFired:
				m.handleTimer(msg)

			case GetState:
				connected := make([]string, 0, len(m.players))
				for id := range m.players {
					connected = append(connected, id)
				}
				slices.Sort(connected)
				msg.Reply <- View{Version: m.version, Connected: connected, State: m.state}

			case Shutdown:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Match) handleJoin(msg Join) {
	events, newState, err := engine.Apply(m.state, engine.Command{
		Type:       engine.CmdJoin,
		PlayerID:   msg.PlayerID,
		ResumeFrom: msg.ResumeFrom,
	})
	if err != nil {
		msg.Reply <- err
		return
	}
	m.state = newState
	m.version++

	if old, ok := m.players[msg.PlayerID]; ok && old != msg.Outbox {
		close(old)
	}
	m.players[msg.PlayerID] = msg.Outbox
	msg.Reply <- nil
	m.log.Info("player joined", zap.String("player_id", msg.PlayerID), zap.String("resume", msg.ResumeFrom))

	if engine.ContainsEvent(events, engine.EvtDuelStarted) {
		for id := range m.state.Players {
			m.sendQuestion(id)
		}
		return
	}
	if m.state.Started {
		// late join or resume: current question plus where everyone is
		m.sendQuestion(msg.PlayerID)
		for _, other := range engine.Opponents(m.state, msg.PlayerID) {
			m.send(msg.PlayerID, protocol.OpponentProgress{Progress: engine.Progress(m.state, other), PlayerID: other})
		}
		if engine.ContainsEvent(events, engine.EvtAnswerRecorded) {
			m.broadcastProgress(msg.PlayerID)
		}
	}
	if engine.ContainsEvent(events, engine.EvtDuelCompleted) {
		m.complete()
	}
}

func (m *Match) handleAnswer(msg FromPlayer) {
	events, newState, err := engine.Apply(m.state, engine.Command{
		Type:       engine.CmdAnswer,
		PlayerID:   msg.PlayerID,
		QuestionID: msg.Answer.QuestionID,
		Answer:     msg.Answer.Answer,
	})
	if err != nil {
		m.log.Debug("answer rejected", zap.String("player_id", msg.PlayerID), zap.Error(err))
		m.send(msg.PlayerID, protocol.ServerError{Message: err.Error()})
		return
	}
	m.state = newState
	m.version++

	m.sendQuestion(msg.PlayerID)
	m.broadcastProgress(msg.PlayerID)

	if engine.ContainsEvent(events, engine.EvtDuelCompleted) {
		m.complete()
	}
}

func (m *Match) handleTimer(msg timerFired) {
	pt, ok := m.timers[msg.PlayerID]
	if !ok || pt.gen != msg.Gen {
		return // stale
	}
	events, newState, err := engine.Apply(m.state, engine.Command{
		Type:       engine.CmdTimeout,
		PlayerID:   msg.PlayerID,
		QuestionID: msg.QuestionID,
	})
	if err != nil {
		m.log.Debug("timer ignored", zap.String("player_id", msg.PlayerID), zap.Error(err))
		return
	}
	m.state = newState
	m.version++
	m.log.Info("question expired", zap.String("player_id", msg.PlayerID), zap.String("question_id", msg.QuestionID))

	m.sendQuestion(msg.PlayerID)
	m.broadcastProgress(msg.PlayerID)

	if engine.ContainsEvent(events, engine.EvtDuelCompleted) {
		m.complete()
	}
}

// sendQuestion delivers the player's current question and arms its timer.
// Re-sending the same question keeps the running timer.
func (m *Match) sendQuestion(playerID string) {
	q, ok := engine.Current(m.state, playerID)
	if !ok {
		m.stopTimer(playerID)
		return
	}
	m.arm(playerID, q.ID)
	m.send(playerID, protocol.Question{Data: protocol.QuestionData{
		ID:        q.ID,
		Text:      q.Text,
		Options:   slices.Clone(q.Options),
		Total:     len(m.state.Questions),
		TimeLimit: m.state.Rules.TimeLimitSec,
	}})
}

func (m *Match) arm(playerID, questionID string) {
	limit := m.state.Rules.TimeLimitSec
	if limit <= 0 {
		return
	}
	pt := m.timers[playerID]
	if pt != nil && pt.questionID == questionID {
		return
	}
	gen := 1
	if pt != nil {
		pt.t.Stop()
		gen = pt.gen + 1
	}
	fired := timerFired{PlayerID: playerID, QuestionID: questionID, Gen: gen}
	m.timers[playerID] = &playerTimer{
		gen:        gen,
		questionID: questionID,
		t: time.AfterFunc(expiry(limit), func() {
			select {
			case m.inbox <- fired:
			case <-m.ctx.Done():
			}
		}),
	}
}

func (m *Match) stopTimer(playerID string) {
	if pt, ok := m.timers[playerID]; ok {
		pt.t.Stop()
		delete(m.timers, playerID)
	}
}

// broadcastProgress tells everyone else how far playerID has got.
func (m *Match) broadcastProgress(playerID string) {
	f := protocol.OpponentProgress{Progress: engine.Progress(m.state, playerID), PlayerID: playerID}
	for _, other := range engine.Opponents(m.state, playerID) {
		m.send(other, f)
	}
}

func (m *Match) send(playerID string, f protocol.ServerFrame) {
	ch, ok := m.players[playerID]
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
		// Player is slow/full - drop them.
		m.log.Warn("dropping slow player", zap.String("player_id", playerID))
		close(ch)
		delete(m.players, playerID)
	}
}

func (m *Match) complete() {
	m.log.Info("duel completed")
	if m.onComplete != nil {
		m.onComplete(m.id)
	}
	m.shutdown()
}

// shutdown cancels before closing outboxes so writers can tell the end of
// the match from being dropped.
func (m *Match) shutdown() {
	m.cancel()
	for id := range m.timers {
		m.stopTimer(id)
	}
	for id, ch := range m.players {
		close(ch)
		delete(m.players, id)
	}
}
