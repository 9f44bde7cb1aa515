// Package engine is the pure rules of a quiz duel: who is on which question,
// what they answered, and when the duel is over.
package engine

import (
	"errors"
	"maps"
	"slices"

	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
)

var ErrUnknownPlayer = errors.New("player is not in this duel")
var ErrNotStarted = errors.New("duel has not started")
var ErrWrongQuestion = errors.New("answer is not for the current question")
var ErrPlayerFinished = errors.New("player already answered every question")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Rules struct {
	TimeLimitSec int
}

type Player struct {
	Joined   bool
	Cursor   int
	Answered []string
	Correct  int
}

type State struct {
	Questions []questions.Question
	Players   map[string]Player
	Started   bool
	Rules     Rules
}

type CommandType string

const (
	CmdJoin    CommandType = "Join"
	CmdAnswer  CommandType = "Answer"
	CmdTimeout CommandType = "Timeout"
)

/*
	CmdJoin   -> EvtPlayerJoined -> EvtDuelStarted (once everyone is in)
	CmdJoin with a resume id matching the current question
	          -> EvtAnswerRecorded (as wrong) -> EvtPlayerFinished? -> EvtDuelCompleted?
	          The client already counted that answer, so the server moves on.
	CmdAnswer -> EvtAnswerRecorded -> EvtPlayerFinished? -> EvtDuelCompleted?
	CmdTimeout -> EvtQuestionExpired -> EvtAnswerRecorded (as wrong) -> ...same as CmdAnswer
*/

type Command struct {
	Type       CommandType
	PlayerID   string
	QuestionID string
	Answer     string
	ResumeFrom string
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtDuelStarted     EventType = "DuelStarted"
	EvtAnswerRecorded  EventType = "AnswerRecorded"
	EvtQuestionExpired EventType = "QuestionExpired"
	EvtPlayerFinished  EventType = "PlayerFinished"
	EvtDuelCompleted   EventType = "DuelCompleted"
)

type Event struct {
	Type       EventType
	PlayerID   string
	QuestionID string
	Correct    bool
	Progress   int
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, s, ErrUnknownPlayer
	}

	newState := s
	newState.Players = maps.Clone(s.Players)
	p.Answered = slices.Clone(p.Answered)

	switch cmd.Type {
	case CmdJoin:
		events := []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID, Progress: p.Cursor}}
		p.Joined = true

		if s.Started && cmd.ResumeFrom != "" && p.Cursor < len(s.Questions) && s.Questions[p.Cursor].ID == cmd.ResumeFrom {
			events = append(events, p.record(s, cmd.PlayerID, false)...)
		}
		newState.Players[cmd.PlayerID] = p

		if !s.Started && allJoined(newState) {
			newState.Started = true
			events = append(events, Event{Type: EvtDuelStarted})
		}
		if s.Started && allFinished(newState) && !allFinished(s) {
			events = append(events, Event{Type: EvtDuelCompleted})
		}
		return events, newState, nil

	case CmdAnswer, CmdTimeout:
		if !s.Started {
			return nil, s, ErrNotStarted
		}
		if p.Cursor >= len(s.Questions) {
			return nil, s, ErrPlayerFinished
		}
		q := s.Questions[p.Cursor]
		if q.ID != cmd.QuestionID {
			return nil, s, ErrWrongQuestion
		}

		var events []Event
		if cmd.Type == CmdTimeout {
			events = append(events, Event{Type: EvtQuestionExpired, PlayerID: cmd.PlayerID, QuestionID: q.ID})
		}
		events = append(events, p.record(s, cmd.PlayerID, cmd.Type == CmdAnswer && cmd.Answer == q.Answer)...)
		newState.Players[cmd.PlayerID] = p
		if allFinished(newState) {
			events = append(events, Event{Type: EvtDuelCompleted})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// record moves the player past their current question.
func (p *Player) record(s State, playerID string, correct bool) []Event {
	q := s.Questions[p.Cursor]
	p.Answered = append(p.Answered, q.ID)
	p.Cursor++
	if correct {
		p.Correct++
	}
	events := []Event{{Type: EvtAnswerRecorded, PlayerID: playerID, QuestionID: q.ID, Correct: correct, Progress: p.Cursor}}
	if p.Cursor == len(s.Questions) {
		events = append(events, Event{Type: EvtPlayerFinished, PlayerID: playerID, Progress: p.Cursor})
	}
	return events
}

func allJoined(s State) bool {
	for _, p := range s.Players {
		if !p.Joined {
			return false
		}
	}
	return true
}

func allFinished(s State) bool {
	for _, p := range s.Players {
		if p.Cursor < len(s.Questions) {
			return false
		}
	}
	return true
}
