package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed frame")
var ErrUnknownType = errors.New("unknown frame type")

type Kind string

const (
	KindWelcome          Kind = "welcome"
	KindDuelRequest      Kind = "duel_request"
	KindQuestion         Kind = "question"
	KindOpponentProgress Kind = "opponent_progress"
	KindError            Kind = "error"
	KindAnswer           Kind = "answer"
)

// Envelope is the flat wire shape shared by every frame. Only the fields of
// the frame's kind are populated.
type Envelope struct {
	Type Kind `json:"type"`

	DuelID        string `json:"duelId,omitempty"`
	RequesterID   string `json:"requesterId,omitempty"`
	RequesterName string `json:"requesterName,omitempty"`

	Data     *QuestionData `json:"data,omitempty"`
	Progress *int          `json:"progress,omitempty"`
	PlayerID string        `json:"playerId,omitempty"`
	Message  string        `json:"message,omitempty"`

	QuestionID string `json:"questionId,omitempty"`
	Answer     string `json:"answer,omitempty"`
}

type QuestionData struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	Total     int      `json:"total,omitempty"`
	TimeLimit int      `json:"timeLimit,omitempty"` // seconds
}

// Frame is anything that can be written to a socket.
type Frame interface {
	envelope() Envelope
}

// Notification is a frame received on the notification socket.
type Notification interface {
	Frame
	isNotification()
}

// ServerFrame is a frame the duel service pushes on the duel socket.
type ServerFrame interface {
	Frame
	isServerFrame()
}

type Welcome struct {
	Message string
}

type DuelRequest struct {
	DuelID        string
	RequesterID   string
	RequesterName string
}

type Question struct {
	Data QuestionData
}

type OpponentProgress struct {
	Progress int
	PlayerID string
}

type ServerError struct {
	Message string
}

// Answer is the only frame a client sends on the duel socket.
type Answer struct {
	QuestionID string
	Answer     string
}

func (Welcome) isNotification()     {}
func (DuelRequest) isNotification() {}

func (Question) isServerFrame()         {}
func (OpponentProgress) isServerFrame() {}
func (ServerError) isServerFrame()      {}

func (f Welcome) envelope() Envelope {
	return Envelope{Type: KindWelcome, Message: f.Message}
}

func (f DuelRequest) envelope() Envelope {
	return Envelope{Type: KindDuelRequest, DuelID: f.DuelID, RequesterID: f.RequesterID, RequesterName: f.RequesterName}
}

func (f Question) envelope() Envelope {
	data := f.Data
	return Envelope{Type: KindQuestion, Data: &data}
}

func (f OpponentProgress) envelope() Envelope {
	p := f.Progress
	return Envelope{Type: KindOpponentProgress, Progress: &p, PlayerID: f.PlayerID}
}

func (f ServerError) envelope() Envelope {
	return Envelope{Type: KindError, Message: f.Message}
}

func (f Answer) envelope() Envelope {
	return Envelope{Type: KindAnswer, QuestionID: f.QuestionID, Answer: f.Answer}
}

// Encode marshals a frame into its wire form.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f.envelope())
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodeNotification parses a notification socket frame. Unrecognized kinds
// return ErrUnknownType so callers can ignore them.
func DecodeNotification(data []byte) (Notification, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindWelcome:
		return Welcome{Message: env.Message}, nil
	case KindDuelRequest:
		if env.DuelID == "" {
			return nil, fmt.Errorf("%w: duel_request without duelId", ErrMalformed)
		}
		return DuelRequest{DuelID: env.DuelID, RequesterID: env.RequesterID, RequesterName: env.RequesterName}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeServerFrame parses a frame pushed by the duel service.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindQuestion:
		if env.Data == nil || env.Data.ID == "" {
			return nil, fmt.Errorf("%w: question without id", ErrMalformed)
		}
		if len(env.Data.Options) == 0 {
			return nil, fmt.Errorf("%w: question %s has no options", ErrMalformed, env.Data.ID)
		}
		if env.Data.Total < 0 || env.Data.TimeLimit < 0 {
			return nil, fmt.Errorf("%w: question %s has negative limits", ErrMalformed, env.Data.ID)
		}
		return Question{Data: *env.Data}, nil
	case KindOpponentProgress:
		if env.Progress == nil {
			return nil, fmt.Errorf("%w: opponent_progress without progress", ErrMalformed)
		}
		return OpponentProgress{Progress: *env.Progress, PlayerID: env.PlayerID}, nil
	case KindError:
		return ServerError{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeAnswer parses a client frame on the duel socket.
func DecodeAnswer(data []byte) (Answer, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return Answer{}, err
	}
	if env.Type != KindAnswer {
		return Answer{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if env.QuestionID == "" {
		return Answer{}, fmt.Errorf("%w: answer without questionId", ErrMalformed)
	}
	return Answer{QuestionID: env.QuestionID, Answer: env.Answer}, nil
}
