package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1sec0d/courseclash-duels/internal/duel"
	"github.com/w1sec0d/courseclash-duels/internal/orchestrator"
	"github.com/w1sec0d/courseclash-duels/internal/quiz"
	"github.com/w1sec0d/courseclash-duels/internal/session"
)

const helpText = `commands:
  search <email>        look up an opponent
  request [opponentId]  challenge an opponent (defaults to the last search)
  inbox                 list pending challenges
  accept [duelId]       accept a challenge (defaults to the oldest)
  reject <duelId>       discard a challenge
  answer <letter>       answer the current question
  status                show connection and duel state
  retry                 reopen the duel socket after a failure
  leave                 close the duel socket
  quit                  exit`

var errQuit = errors.New("quit")

type cli struct {
	s   *session.Session
	in  io.Reader
	now func() time.Time

	mu       sync.Mutex // guards out and the fields below
	out      io.Writer
	found    string
	lastDuel duel.View
}

func newCLI(s *session.Session, in io.Reader, out io.Writer) *cli {
	return &cli{s: s, in: in, out: out, now: time.Now}
}

// Run reads commands until quit, EOF or ctx is cancelled while printing
// duel updates and incoming challenges as they arrive.
func (c *cli) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.watch(gctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := c.exec(gctx, line); err != nil {
					if errors.Is(err, errQuit) {
						return errQuit
					}
					c.printf("error: %s\n", describe(err))
				}
			}
		}
	})
	if err := g.Wait(); !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func (c *cli) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-c.s.Duel.Watch():
			c.showDuel(v)
		case <-c.s.Inbox.Changed():
			pending := c.s.Inbox.List()
			if len(pending) == 0 {
				continue
			}
			ch := pending[len(pending)-1]
			c.printf("challenge from %s; type accept %s\n", requester(ch.RequesterName, ch.RequesterID), ch.DuelID)
		}
	}
}

func (c *cli) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case "help", "?":
		c.printf("%s\n", helpText)

	case "search":
		u, err := c.s.Orchestrator.SearchOpponent(ctx, arg)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.found = u.ID
		c.mu.Unlock()
		c.printf("found %s <%s> (id %s)\n", u.Name, u.Email, u.ID)

	case "request":
		if arg == "" {
			c.mu.Lock()
			arg = c.found
			c.mu.Unlock()
		}
		res, err := c.s.Orchestrator.RequestDuel(ctx, c.s.UserID, arg)
		if err != nil {
			return err
		}
		c.printf("duel %s: %s\n", res.DuelID, res.Message)

	case "inbox":
		pending := c.s.Inbox.List()
		if len(pending) == 0 {
			c.printf("no pending challenges\n")
		}
		for _, ch := range pending {
			c.printf("  %s from %s\n", ch.DuelID, requester(ch.RequesterName, ch.RequesterID))
		}

	case "accept":
		if arg == "" {
			pending := c.s.Inbox.List()
			if len(pending) == 0 {
				return errors.New("no pending challenges")
			}
			arg = pending[0].DuelID
		}
		if err := c.s.Inbox.Accept(ctx, arg); err != nil {
			return err
		}
		c.printf("joined duel %s\n", arg)

	case "reject":
		return c.s.Inbox.Reject(arg)

	case "answer":
		v := c.s.Duel.State()
		if v.Question == nil {
			return duel.ErrNoActiveQuestion
		}
		value, ok := v.Question.ByLabel(arg)
		if !ok {
			return fmt.Errorf("no option %q", arg)
		}
		return c.s.Duel.SubmitAnswer(ctx, value)

	case "status":
		c.printf("notifications: %s", c.s.Notify.Status())
		if e := c.s.Notify.LastError(); e != "" {
			c.printf(" (%s)", e)
		}
		c.printf("\n%s", formatStatus(c.s.Duel.State(), c.now()))
		if e := c.s.Orchestrator.LastError(); e != "" {
			c.printf("last error: %s\n", e)
		}

	case "retry":
		return c.s.Orchestrator.RetryOpen(ctx)

	case "leave":
		return c.s.Duel.Close()

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q; type help", fields[0])
	}
	return nil
}

// showDuel prints a snapshot only when something the player can see changed.
func (c *cli) showDuel(v duel.View) {
	c.mu.Lock()
	prev := c.lastDuel
	c.lastDuel = v
	c.mu.Unlock()

	newQuestion := v.Question != nil && (prev.Question == nil || prev.Question.ID != v.Question.ID)
	switch {
	case newQuestion:
		c.printf("%s", formatQuestion(*v.Question, v.Progress.Local))
		c.printf("%s\n", formatProgress(v))
	case v.Progress != prev.Progress:
		c.printf("%s\n", formatProgress(v))
	}
	if v.State != prev.State && (v.State == duel.StateClosed || v.State == duel.StateReconnecting || v.State == duel.StateConnecting) {
		c.printf("duel %s: %s\n", v.DuelID, v.State)
	}
	if v.LastError != "" && v.LastError != prev.LastError {
		c.printf("duel error: %s\n", v.LastError)
	}
}

func (c *cli) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func formatQuestion(q quiz.Question, answered int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d", answered+1)
	if q.Total > 0 {
		fmt.Fprintf(&b, "/%d", q.Total)
	}
	if q.TimeLimit > 0 {
		fmt.Fprintf(&b, " (%s)", q.TimeLimit)
	}
	fmt.Fprintf(&b, ": %s\n", q.Text)
	for _, o := range q.Labeled() {
		fmt.Fprintf(&b, "  %s) %s\n", o.Label, o.Value)
	}
	return b.String()
}

func formatProgress(v duel.View) string {
	opp := v.OpponentID
	if opp == "" {
		opp = duel.OpponentPlaceholder
	}
	p := v.Progress
	return fmt.Sprintf("Progress: you %d/%d vs %s %d/%d", p.Local, p.Total, opp, p.Opponent, p.Total)
}

func formatStatus(v duel.View, now time.Time) string {
	if v.DuelID == "" {
		return "duel: none\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "duel %s as %s: %s\n", v.DuelID, v.PlayerID, v.State)
	if v.Question != nil {
		fmt.Fprintf(&b, "current question: %s", v.Question.Text)
		if left := v.Remaining(now); left > 0 {
			fmt.Fprintf(&b, " (%s left)", left.Round(time.Second))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n", formatProgress(v))
	return b.String()
}

func describe(err error) string {
	var oe *orchestrator.Error
	if errors.As(err, &oe) {
		return oe.Message()
	}
	return err.Error()
}

func requester(name, id string) string {
	if name == "" {
		return id
	}
	return name + " (" + id + ")"
}
