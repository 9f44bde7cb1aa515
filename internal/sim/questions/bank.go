// Package questions supplies the quiz questions the simulator serves.
package questions

import (
	"context"
	"errors"
	"slices"
)

var ErrEmptyBank = errors.New("question bank is empty")

type Question struct {
	ID      string
	Text    string
	Options []string
	Answer  string
}

// Bank hands out n questions for a new duel.
type Bank interface {
	Draw(ctx context.Context, n int) ([]Question, error)
}

// StaticBank serves a fixed list in order, cycling when n exceeds it.
type StaticBank struct {
	questions []Question
}

func NewStaticBank(qs ...Question) *StaticBank {
	if len(qs) == 0 {
		qs = Builtin()
	}
	return &StaticBank{questions: qs}
}

func (b *StaticBank) Draw(_ context.Context, n int) ([]Question, error) {
	if len(b.questions) == 0 {
		return nil, ErrEmptyBank
	}
	out := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		q := b.questions[i%len(b.questions)]
		q.Options = slices.Clone(q.Options)
		out = append(out, q)
	}
	return out, nil
}

// Builtin is the default question set.
func Builtin() []Question {
	return []Question{
		{ID: "q1", Text: "2+2?", Options: []string{"3", "4", "5"}, Answer: "4"},
		{ID: "q2", Text: "Which data structure is FIFO?", Options: []string{"Stack", "Queue", "Tree", "Heap"}, Answer: "Queue"},
		{ID: "q3", Text: "HTTP status for Not Found?", Options: []string{"200", "301", "404", "500"}, Answer: "404"},
		{ID: "q4", Text: "Binary search runs in?", Options: []string{"O(n)", "O(log n)", "O(n log n)"}, Answer: "O(log n)"},
		{ID: "q5", Text: "Which is not a primitive color of light?", Options: []string{"Red", "Green", "Yellow", "Blue"}, Answer: "Yellow"},
		{ID: "q6", Text: "SQL keyword to remove rows?", Options: []string{"DROP", "DELETE", "TRUNCATE TABLE ONLY"}, Answer: "DELETE"},
		{ID: "q7", Text: "Default WebSocket normal close code?", Options: []string{"1000", "1001", "1006"}, Answer: "1000"},
	}
}
