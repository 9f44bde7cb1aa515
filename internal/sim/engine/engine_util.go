package engine

import "github.com/w1sec0d/courseclash-duels/internal/sim/questions"

func NewState(qs []questions.Question, rules Rules, playerIDs ...string) State {
	s := State{
		Questions: qs,
		Players:   make(map[string]Player, len(playerIDs)),
		Rules:     rules,
	}
	for _, id := range playerIDs {
		s.Players[id] = Player{}
	}
	return s
}

// Current is the question playerID should see next.
func Current(s State, playerID string) (questions.Question, bool) {
	p, ok := s.Players[playerID]
	if !ok || !s.Started || p.Cursor >= len(s.Questions) {
		return questions.Question{}, false
	}
	return s.Questions[p.Cursor], true
}

func Progress(s State, playerID string) int {
	return s.Players[playerID].Cursor
}

// Opponents lists every player other than playerID.
func Opponents(s State, playerID string) []string {
	var out []string
	for id := range s.Players {
		if id != playerID {
			out = append(out, id)
		}
	}
	return out
}

func Completed(s State) bool {
	return s.Started && allFinished(s)
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
