// Package quiz holds the question model shown during a duel and the progress
// counters for both players.
package quiz

import (
	"strings"
	"time"
)

type Question struct {
	ID      string
	Text    string
	Options []string

	// Zero when the server did not send them.
	Total     int
	TimeLimit time.Duration
}

// Option is an answer choice with its display label. Labels are assigned by
// position and never sent over the wire.
type Option struct {
	Label string
	Value string
}

func (q Question) Labeled() []Option {
	out := make([]Option, len(q.Options))
	for i, v := range q.Options {
		out[i] = Option{Label: Label(i), Value: v}
	}
	return out
}

// ByLabel resolves "A", "b", ... to the option value.
func (q Question) ByLabel(label string) (string, bool) {
	for i, v := range q.Options {
		if strings.EqualFold(Label(i), strings.TrimSpace(label)) {
			return v, true
		}
	}
	return "", false
}

// Label maps 0 -> A, 25 -> Z, 26 -> AA, like spreadsheet columns.
func Label(i int) string {
	if i < 0 {
		return ""
	}
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}
