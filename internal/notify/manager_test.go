package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/retry"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn"
	"github.com/w1sec0d/courseclash-duels/internal/wsconn/wsconntest"
)

const wait = 500 * time.Millisecond

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, d *wsconntest.Dialer, onChallenge func(protocol.DuelRequest), clk *clock) *Manager {
	t.Helper()
	cfg := Config{
		BaseURL:     "ws://gateway:8002",
		Backoff:     retry.Constant(10*time.Millisecond, 0),
		Logger:      zaptest.NewLogger(t),
		OnChallenge: onChallenge,
	}
	if clk != nil {
		cfg.Now = clk.Now
	}
	m := New(d, cfg)
	t.Cleanup(func() { _ = m.Teardown() })
	return m
}

func TestManager_DispatchesDuelRequests(t *testing.T) {
	d := wsconntest.NewDialer()
	got := make(chan protocol.DuelRequest, 4)
	m := newManager(t, d, func(r protocol.DuelRequest) { got <- r }, nil)

	require.NoError(t, m.Connect(context.Background(), "4"))
	conn := d.NextConn(t, wait)
	assert.Equal(t, "ws://gateway:8002/ws/notifications/4", conn.URL)
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, wait, 5*time.Millisecond)

	conn.Push(`{"type":"welcome","message":"hello"}`)
	conn.Push(`{"type":"leaderboard"}`)
	conn.Push(`{not json`)
	conn.Push(`{"type":"duel_request","duelId":"42","requesterId":"7","requesterName":"X"}`)

	select {
	case r := <-got:
		assert.Equal(t, protocol.DuelRequest{DuelID: "42", RequesterID: "7", RequesterName: "X"}, r)
	case <-time.After(wait):
		t.Fatalf("timed out waiting for duel request")
	}

	// malformed and unknown frames never drop the connection
	assert.Equal(t, StatusOpen, m.Status())
	assert.Equal(t, 1, d.Attempts())
}

func TestManager_Connect_RequiresUser(t *testing.T) {
	m := newManager(t, wsconntest.NewDialer(), nil, nil)
	require.ErrorIs(t, m.Connect(context.Background(), ""), ErrMissingUser)
}

func TestManager_Connect_SameUserIsNoop(t *testing.T) {
	d := wsconntest.NewDialer()
	m := newManager(t, d, nil, nil)

	require.NoError(t, m.Connect(context.Background(), "4"))
	_ = d.NextConn(t, wait)
	_ = d.NextAttempt(t, wait)
	require.NoError(t, m.Connect(context.Background(), "4"))

	d.NoAttempt(t, 100*time.Millisecond)
	assert.Equal(t, 1, d.Attempts())
}

func TestManager_Connect_OtherUserReplacesConnection(t *testing.T) {
	d := wsconntest.NewDialer()
	m := newManager(t, d, nil, nil)

	require.NoError(t, m.Connect(context.Background(), "4"))
	first := d.NextConn(t, wait)
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, wait, 5*time.Millisecond)

	require.NoError(t, m.Connect(context.Background(), "9"))
	second := d.NextConn(t, wait)

	closed, code := first.Closed()
	assert.True(t, closed)
	assert.Equal(t, wsconn.StatusNormalClosure, code)
	assert.Equal(t, "ws://gateway:8002/ws/notifications/9", second.URL)
	assert.Equal(t, "9", m.UserID())
}

func TestManager_Teardown_IsIdempotent(t *testing.T) {
	d := wsconntest.NewDialer()
	m := newManager(t, d, nil, nil)

	require.NoError(t, m.Connect(context.Background(), "4"))
	conn := d.NextConn(t, wait)
	_ = d.NextAttempt(t, wait)
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, wait, 5*time.Millisecond)

	require.NoError(t, m.Teardown())
	require.NoError(t, m.Teardown())

	closed, code := conn.Closed()
	assert.True(t, closed)
	assert.Equal(t, wsconn.StatusNormalClosure, code)
	assert.Equal(t, StatusClosed, m.Status())
	d.NoAttempt(t, 100*time.Millisecond)
}

func TestManager_Teardown_WithoutConnect(t *testing.T) {
	m := newManager(t, wsconntest.NewDialer(), nil, nil)
	require.NoError(t, m.Teardown())
	assert.Equal(t, StatusClosed, m.Status())
}

func TestManager_ReconnectsOnlyOnAbnormalClose(t *testing.T) {
	cases := []struct {
		name      string
		close     func(c *wsconntest.Conn)
		reconnect bool
	}{
		{name: "going away", close: func(c *wsconntest.Conn) { c.PeerClose(wsconn.StatusGoingAway) }, reconnect: true},
		{name: "dropped without close frame", close: func(c *wsconntest.Conn) { c.Fail() }, reconnect: true},
		{name: "normal closure", close: func(c *wsconntest.Conn) { c.PeerClose(wsconn.StatusNormalClosure) }, reconnect: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := wsconntest.NewDialer()
			m := newManager(t, d, nil, nil)

			require.NoError(t, m.Connect(context.Background(), "4"))
			conn := d.NextConn(t, wait)
			_ = d.NextAttempt(t, wait)

			tc.close(conn)

			if tc.reconnect {
				next := d.NextConn(t, wait)
				assert.Equal(t, conn.URL, next.URL)
				return
			}
			d.NoAttempt(t, 100*time.Millisecond)
			require.Eventually(t, func() bool { return m.Status() == StatusClosed }, wait, 5*time.Millisecond)
		})
	}
}

func TestManager_ErrorsSuppressedDuringGracePeriod(t *testing.T) {
	d := wsconntest.NewDialer()
	d.SetError(errors.New("connection refused"))
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, d, nil, clk)

	require.NoError(t, m.Connect(context.Background(), "4"))
	for i := 0; i < 5; i++ {
		_ = d.NextAttempt(t, wait)
		clk.Advance(500 * time.Millisecond)
	}
	// 2.5s in, five failures: still inside the window
	assert.Empty(t, m.LastError())

	clk.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return m.LastError() != "" }, wait, 5*time.Millisecond)
	assert.Contains(t, m.LastError(), "connection refused")
}

func TestManager_ErrorsNeedRepeatedAttempts(t *testing.T) {
	d := wsconntest.NewDialer()
	d.SetError(errors.New("connection refused"))
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := New(d, Config{
		BaseURL: "ws://gateway:8002",
		Backoff: retry.Constant(time.Millisecond, 1),
		Now:     clk.Now,
		Logger:  zaptest.NewLogger(t),
	})
	t.Cleanup(func() { _ = m.Teardown() })
	release := d.Hold()

	require.NoError(t, m.Connect(context.Background(), "4"))
	clk.Advance(time.Minute)
	release()

	// two failed attempts past the window: only the exhaustion is reported
	require.Eventually(t, func() bool { return m.Status() == StatusClosed && m.LastError() != "" }, wait, 5*time.Millisecond)
	assert.Equal(t, 2, d.Attempts())
	assert.NotContains(t, m.LastError(), "connection refused")
	assert.Contains(t, m.LastError(), "exhausted")
}

func TestManager_OpenClearsSurfacedError(t *testing.T) {
	d := wsconntest.NewDialer()
	d.SetError(errors.New("connection refused"))
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, d, nil, clk)

	require.NoError(t, m.Connect(context.Background(), "4"))
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return m.LastError() != "" }, wait, 5*time.Millisecond)

	d.SetError(nil)
	_ = d.NextConn(t, wait)
	require.Eventually(t, func() bool {
		return m.Status() == StatusOpen && m.LastError() == "" && m.Attempts() == 0
	}, wait, 5*time.Millisecond)
}

func TestManager_StopsAfterMaxAttempts(t *testing.T) {
	d := wsconntest.NewDialer()
	d.SetError(errors.New("connection refused"))
	m := New(d, Config{
		BaseURL: "ws://gateway:8002",
		Backoff: retry.Constant(time.Millisecond, 2),
		Logger:  zaptest.NewLogger(t),
	})
	t.Cleanup(func() { _ = m.Teardown() })

	require.NoError(t, m.Connect(context.Background(), "4"))
	require.Eventually(t, func() bool { return m.Status() == StatusClosed && m.LastError() != "" }, wait, 5*time.Millisecond)
	assert.Equal(t, 3, d.Attempts())
}
