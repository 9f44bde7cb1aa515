package engine

import (
	"errors"
	"testing"

	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
)

func twoQuestions() []questions.Question {
	return []questions.Question{
		{ID: "q1", Options: []string{"3", "4"}, Answer: "4"},
		{ID: "q2", Options: []string{"a", "b"}, Answer: "b"},
	}
}

func started() State {
	s := NewState(twoQuestions(), Rules{}, "4", "7")
	s.Started = true
	s.Players["4"] = Player{Joined: true}
	s.Players["7"] = Player{Joined: true}
	return s
}

func TestJoin_StartsWhenEveryoneIsIn(t *testing.T) {
	s := NewState(twoQuestions(), Rules{}, "4", "7")

	events, s, err := Apply(s, Command{Type: CmdJoin, PlayerID: "4"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ContainsEvent(events, EvtDuelStarted) || s.Started {
		t.Fatalf("duel started with one player")
	}
	if _, ok := Current(s, "4"); ok {
		t.Fatalf("question handed out before start")
	}

	events, s, err = Apply(s, Command{Type: CmdJoin, PlayerID: "7"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !ContainsEvent(events, EvtDuelStarted) || !s.Started {
		t.Fatalf("want DuelStarted, got %+v", events)
	}
	if q, ok := Current(s, "7"); !ok || q.ID != "q1" {
		t.Fatalf("want q1, got %+v %v", q, ok)
	}
}

func TestApply_Rejections(t *testing.T) {
	finished := started()
	finished.Players["4"] = Player{Joined: true, Cursor: 2, Answered: []string{"q1", "q2"}}

	cases := []struct {
		name    string
		setup   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "stranger",
			setup:   started(),
			cmd:     Command{Type: CmdAnswer, PlayerID: "9", QuestionID: "q1"},
			wantErr: ErrUnknownPlayer,
		},
		{
			name:    "before start",
			setup:   NewState(twoQuestions(), Rules{}, "4", "7"),
			cmd:     Command{Type: CmdAnswer, PlayerID: "4", QuestionID: "q1"},
			wantErr: ErrNotStarted,
		},
		{
			name:    "skipping ahead",
			setup:   started(),
			cmd:     Command{Type: CmdAnswer, PlayerID: "4", QuestionID: "q2"},
			wantErr: ErrWrongQuestion,
		},
		{
			name:    "after last question",
			setup:   finished,
			cmd:     Command{Type: CmdAnswer, PlayerID: "4", QuestionID: "q2"},
			wantErr: ErrPlayerFinished,
		},
		{
			name:    "unknown command",
			setup:   started(),
			cmd:     Command{Type: "Hover", PlayerID: "4"},
			wantErr: ErrUnsupportedCommand,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, _, err := Apply(tc.setup, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if events != nil {
				t.Fatalf("want no events on error, got %+v", events)
			}
		})
	}
}

func TestAnswer_AdvancesOnlyThatPlayer(t *testing.T) {
	s := started()

	events, next, err := Apply(s, Command{Type: CmdAnswer, PlayerID: "4", QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(events) != 1 || events[0].Type != EvtAnswerRecorded || !events[0].Correct || events[0].Progress != 1 {
		t.Fatalf("unexpected events %+v", events)
	}
	if Progress(next, "4") != 1 || Progress(next, "7") != 0 {
		t.Fatalf("progress 4=%d 7=%d", Progress(next, "4"), Progress(next, "7"))
	}
	// the input state is untouched
	if Progress(s, "4") != 0 || len(s.Players["4"].Answered) != 0 {
		t.Fatalf("Apply mutated its input")
	}
}

func TestAnswer_CompletesDuel(t *testing.T) {
	s := started()
	var events []Event
	var err error
	for _, step := range []Command{
		{Type: CmdAnswer, PlayerID: "4", QuestionID: "q1", Answer: "4"},
		{Type: CmdAnswer, PlayerID: "4", QuestionID: "q2", Answer: "a"},
		{Type: CmdAnswer, PlayerID: "7", QuestionID: "q1", Answer: "3"},
	} {
		if events, s, err = Apply(s, step); err != nil {
			t.Fatalf("%+v: %v", step, err)
		}
	}
	if ContainsEvent(events, EvtDuelCompleted) {
		t.Fatalf("completed before 7 finished")
	}

	events, s, err = Apply(s, Command{Type: CmdAnswer, PlayerID: "7", QuestionID: "q2", Answer: "b"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !ContainsEvent(events, EvtPlayerFinished) || !ContainsEvent(events, EvtDuelCompleted) || !Completed(s) {
		t.Fatalf("want finished+completed, got %+v", events)
	}
	if s.Players["4"].Correct != 1 || s.Players["7"].Correct != 1 {
		t.Fatalf("scores %+v", s.Players)
	}
}

func TestJoin_ResumeSkipsLostAnswer(t *testing.T) {
	s := started()

	// the client counted q1 but the server never got it
	events, s, err := Apply(s, Command{Type: CmdJoin, PlayerID: "4", ResumeFrom: "q1"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !ContainsEvent(events, EvtAnswerRecorded) {
		t.Fatalf("want AnswerRecorded, got %+v", events)
	}
	if q, _ := Current(s, "4"); q.ID != "q2" {
		t.Fatalf("want q2 after resume, got %s", q.ID)
	}

	// q1 was received: resuming from it again changes nothing
	events, s, err = Apply(s, Command{Type: CmdJoin, PlayerID: "4", ResumeFrom: "q1"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if ContainsEvent(events, EvtAnswerRecorded) || Progress(s, "4") != 1 {
		t.Fatalf("resume from an acknowledged question moved the cursor: %+v", events)
	}
}

func TestOpponents(t *testing.T) {
	s := started()
	if got := Opponents(s, "4"); len(got) != 1 || got[0] != "7" {
		t.Fatalf("want [7], got %v", got)
	}
}

func TestTimeout_CountsAsWrong(t *testing.T) {
	s := started()

	events, s, err := Apply(s, Command{Type: CmdTimeout, PlayerID: "4", QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if events[0].Type != EvtQuestionExpired || events[1].Type != EvtAnswerRecorded || events[1].Correct {
		t.Fatalf("unexpected events %+v", events)
	}
	if Progress(s, "4") != 1 || s.Players["4"].Correct != 0 {
		t.Fatalf("want cursor 1 and no points, got %+v", s.Players["4"])
	}

	// a late timer for a question already answered is stale
	if _, _, err := Apply(s, Command{Type: CmdTimeout, PlayerID: "4", QuestionID: "q1"}); !errors.Is(err, ErrWrongQuestion) {
		t.Fatalf("want ErrWrongQuestion, got %v", err)
	}
}
