package hub

import (
	"context"
	"testing"
	"time"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/sim/engine"
	"github.com/w1sec0d/courseclash-duels/internal/sim/match"
	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
)

func recvNotification(t *testing.T, ch <-chan protocol.Notification, within time.Duration) protocol.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notification")
		return nil
	}
}

func getMatch(h *Hub, id string) *match.Match {
	reply := make(chan *match.Match, 1)
	h.Inbox() <- GetMatch{ID: id, Reply: reply}
	return <-reply
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil)
	reply := make(chan *match.Match, 1)

	state := engine.NewState(questions.Builtin()[:1], engine.Rules{}, "4", "7")
	h.Inbox() <- CreateMatch{ID: "42", State: state, Reply: reply}
	m1 := <-reply

	h.Inbox() <- CreateMatch{ID: "42", State: state, Reply: reply}
	m2 := <-reply

	m3 := getMatch(h, "42")
	if m1 == nil || m1 != m2 || m1 != m3 {
		t.Fatalf("expected same match pointer")
	}
	if getMatch(h, "nope") != nil {
		t.Fatalf("expected nil for unknown match")
	}
}

func TestHub_RemovesCompletedMatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil)

	q := questions.Builtin()[0]
	reply := make(chan *match.Match, 1)
	h.Inbox() <- CreateMatch{ID: "42", State: engine.NewState([]questions.Question{q}, engine.Rules{}, "4", "7"), Reply: reply}
	m := <-reply

	for _, p := range []string{"4", "7"} {
		joined := make(chan error, 1)
		m.Inbox() <- match.Join{PlayerID: p, Outbox: make(chan protocol.ServerFrame, 8), Reply: joined}
		if err := <-joined; err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	for _, p := range []string{"4", "7"} {
		m.Inbox() <- match.FromPlayer{PlayerID: p, Answer: protocol.Answer{QuestionID: q.ID, Answer: q.Answer}}
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for getMatch(h, "42") != nil {
		if time.Now().After(deadline) {
			t.Fatalf("completed match still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_NotifyFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil)

	tab1 := make(chan protocol.Notification, 1)
	tab2 := make(chan protocol.Notification, 1)
	other := make(chan protocol.Notification, 1)
	h.Inbox() <- Subscribe{UserID: "7", Outbox: tab1}
	h.Inbox() <- Subscribe{UserID: "7", Outbox: tab2}
	h.Inbox() <- Subscribe{UserID: "9", Outbox: other}

	req := protocol.DuelRequest{DuelID: "42", RequesterID: "4", RequesterName: "Ana"}
	reply := make(chan int, 1)
	h.Inbox() <- Notify{UserID: "7", Frame: req, Reply: reply}
	if n := <-reply; n != 2 {
		t.Fatalf("want 2 deliveries, got %d", n)
	}
	for _, ch := range []chan protocol.Notification{tab1, tab2} {
		if got := recvNotification(t, ch, 100*time.Millisecond); got != req {
			t.Fatalf("want %+v, got %+v", req, got)
		}
	}
	select {
	case n := <-other:
		t.Fatalf("user 9 got %+v", n)
	default:
	}

	h.Inbox() <- Unsubscribe{UserID: "7", Outbox: tab1}
	h.Inbox() <- Notify{UserID: "7", Frame: req, Reply: reply}
	if n := <-reply; n != 1 {
		t.Fatalf("want 1 delivery after unsubscribe, got %d", n)
	}
	if _, ok := <-tab1; ok {
		t.Fatalf("unsubscribed outbox should be closed")
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil)

	slow := make(chan protocol.Notification) // never drained
	h.Inbox() <- Subscribe{UserID: "7", Outbox: slow}

	reply := make(chan int, 1)
	h.Inbox() <- Notify{UserID: "7", Frame: protocol.Welcome{Message: "hi"}, Reply: reply}
	if n := <-reply; n != 0 {
		t.Fatalf("want 0 deliveries, got %d", n)
	}
	if _, ok := <-slow; ok {
		t.Fatalf("slow outbox should be closed")
	}
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub(context.Background(), nil)
	sub := make(chan protocol.Notification, 1)
	h.Inbox() <- Subscribe{UserID: "7", Outbox: sub}
	h.Inbox() <- ShutdownHub{}

	select {
	case <-h.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("hub did not stop")
	}
	if _, ok := <-sub; ok {
		t.Fatalf("subscriber outbox should be closed")
	}
}

func TestHub_NoReplyAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, nil)
	cancel()

	// the buffered inbox may still take the message; it must not be answered
	reply := make(chan *match.Match, 1)
	select {
	case h.Inbox() <- GetMatch{ID: "42", Reply: reply}:
	case <-h.Done():
	}
	select {
	case m := <-reply:
		t.Fatalf("got a reply after cancel: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}
