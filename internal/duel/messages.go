package duel

import (
	"time"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/quiz"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
)

type State string

const (
	StateIdle               State = "idle"
	StateConnecting         State = "connecting"
	StateWaitingForQuestion State = "waiting_for_question"
	StateAwaitingAnswer     State = "awaiting_answer"
	StateError              State = "error"
	StateReconnecting       State = "reconnecting"
	StateClosed             State = "closed"
)

// connected reports whether the socket is up in this state.
func (s State) connected() bool {
	switch s {
	case StateWaitingForQuestion, StateAwaitingAnswer, StateError:
		return true
	}
	return false
}

// OpponentPlaceholder stands in until the opponent id is known.
const OpponentPlaceholder = "opponent"

type OpenRequest struct {
	DuelID     string
	PlayerID   string
	OpponentID string // optional
}

// View is a read-only snapshot of the current session.
type View struct {
	DuelID     string
	PlayerID   string
	OpponentID string
	State      State
	Question   *quiz.Question
	Deadline   time.Time // zero when the question has no time limit
	Progress   quiz.Progress
	LastError  string
}

// Remaining is the time left on the current question, or 0 without a deadline.
func (v View) Remaining(now time.Time) time.Duration {
	if v.Deadline.IsZero() {
		return 0
	}
	if d := v.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

type msg interface{ isDuelMsg() }

type openReq struct {
	req   OpenRequest
	reply chan error
}

type dialResult struct {
	gen   int
	conn  wsconn.Conn
	err   error
	reply chan error // nil for resume dials
}

type frameIn struct {
	gen   int
	frame protocol.ServerFrame
}

type connLost struct {
	gen int
	err error
}

type writeFailed struct {
	gen int
	err error
}

type resumeDue struct{ gen int }

type answerReq struct {
	option string
	reply  chan error
}

type closeReq struct{ reply chan error }

type getView struct{ reply chan View }

func (openReq) isDuelMsg()     {}
func (dialResult) isDuelMsg()  {}
func (frameIn) isDuelMsg()     {}
func (connLost) isDuelMsg()    {}
func (writeFailed) isDuelMsg() {}
func (resumeDue) isDuelMsg()   {}
func (answerReq) isDuelMsg()   {}
func (closeReq) isDuelMsg()    {}
func (getView) isDuelMsg()     {}
