package quiz

import (
	"errors"
)

var ErrAlreadyAnswered = errors.New("question already answered")

type Progress struct {
	Local    int
	Opponent int
	Total    int
}

func (p Progress) Done() bool {
	return p.Total > 0 && p.Local >= p.Total
}

// Tracker derives both players' progress. Local progress only moves through
// RecordAnswer and opponent progress only through ApplyOpponent. It is not
// safe for concurrent use; the duel session owns it from a single goroutine.
type Tracker struct {
	total    int
	local    int
	opponent int
	answered map[string]bool
	last     string
}

func NewTracker(defaultTotal int) *Tracker {
	return &Tracker{total: defaultTotal, answered: map[string]bool{}}
}

// SetTotal adopts a server-supplied question count. Non-positive values are ignored.
func (t *Tracker) SetTotal(n int) {
	if n <= 0 {
		return
	}
	t.total = n
	t.opponent = clamp(t.opponent, 0, t.total)
}

// RecordAnswer counts one answered question.
func (t *Tracker) RecordAnswer(questionID string) error {
	if t.answered[questionID] {
		return ErrAlreadyAnswered
	}
	t.answered[questionID] = true
	t.last = questionID
	if t.local < t.total {
		t.local++
	}
	return nil
}

func (t *Tracker) Answered(questionID string) bool {
	return t.answered[questionID]
}

// LastAnswered is the most recent question this player answered, "" if none.
func (t *Tracker) LastAnswered() string {
	return t.last
}

func (t *Tracker) ApplyOpponent(n int) {
	t.opponent = clamp(n, 0, t.total)
}

func (t *Tracker) Snapshot() Progress {
	return Progress{Local: t.local, Opponent: t.opponent, Total: t.total}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
