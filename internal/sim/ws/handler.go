// Package ws serves the simulator's notification and duel sockets.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/sim/engine"
	"github.com/w1sec0d/courseclash-duels/internal/sim/hub"
	"github.com/w1sec0d/courseclash-duels/internal/sim/match"
)

const (
	writeTimeout = 3 * time.Second
	idleTimeout  = 5 * time.Minute
)

type Options struct {
	// OriginPatterns loosens the origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
	Logger         *zap.Logger
}

// NotificationHandler serves /ws/notifications/{userId}. The socket is
// server-push only; anything the client sends is read and dropped.
func NotificationHandler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := logger(opts).Named("notifications")
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		// Subscribe before the upgrade completes so nothing sent after the
		// client sees the socket open is missed.
		out := make(chan protocol.Notification, 8)
		if !post(r.Context(), h, hub.Subscribe{UserID: userID, Outbox: out}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer post(context.Background(), h, hub.Unsubscribe{UserID: userID, Outbox: out})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		log := log.With(zap.String("user_id", userID))
		log.Info("notification socket open")

		if err := write(r.Context(), conn, protocol.Welcome{Message: "connected as " + userID}); err != nil {
			return
		}

		// Writer goroutine
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-out:
					if !ok {
						conn.Close(closeCode(h.Done()), "unsubscribed")
						return
					}
					if err := write(ctx, conn, f); err != nil {
						log.Debug("notification write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		err = readUntilClosed(ctx, conn)
		logClose(log, err)
	}
}

// DuelHandler serves /ws/duels/{duelId}/{playerId}[?resume=questionId].
func DuelHandler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := logger(opts).Named("duels")
	return func(w http.ResponseWriter, r *http.Request) {
		duelID := chi.URLParam(r, "duelId")
		playerID := chi.URLParam(r, "playerId")
		if duelID == "" || playerID == "" {
			http.Error(w, "missing duel or player id", http.StatusBadRequest)
			return
		}

		reply := make(chan *match.Match, 1)
		if !post(r.Context(), h, hub.GetMatch{ID: duelID, Reply: reply}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		var m *match.Match
		select {
		case m = <-reply:
		case <-h.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		}
		if m == nil {
			http.Error(w, "duel not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		log := log.With(zap.String("duel_id", duelID), zap.String("player_id", playerID))

		out := make(chan protocol.ServerFrame, 16)
		joined := make(chan error, 1)
		resume := r.URL.Query().Get("resume")
		if err := joinMatch(r.Context(), m, match.Join{PlayerID: playerID, ResumeFrom: resume, Outbox: out, Reply: joined}); err != nil {
			log.Info("join refused", zap.Error(err))
			if errors.Is(err, engine.ErrUnknownPlayer) {
				conn.Close(websocket.StatusPolicyViolation, err.Error())
			} else {
				conn.Close(websocket.StatusGoingAway, err.Error())
			}
			return
		}
		defer func() {
			select {
			case m.Inbox() <- match.Leave{PlayerID: playerID, Outbox: out}:
			case <-m.Done():
			}
		}()
		log.Info("duel socket open", zap.String("resume", resume))

		// Writer goroutine
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-out:
					if !ok {
						// drained: the duel is over or this socket was replaced
						conn.Close(closeCode(m.Done()), "duel over")
						return
					}
					if err := write(ctx, conn, f); err != nil {
						log.Debug("duel write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, idleTimeout)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				logClose(log, err)
				return
			}

			ans, err := protocol.DecodeAnswer(data)
			if err != nil {
				log.Warn("bad client frame", zap.Error(err))
				_ = write(ctx, conn, protocol.ServerError{Message: err.Error()})
				continue
			}

			select {
			case m.Inbox() <- match.FromPlayer{PlayerID: playerID, Answer: ans}:
			case <-m.Done():
				return
			}
		}
	}
}

func joinMatch(ctx context.Context, m *match.Match, j match.Join) error {
	select {
	case m.Inbox() <- j:
	case <-m.Done():
		return errors.New("duel is over")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.Reply:
		return err
	case <-m.Done():
		return errors.New("duel is over")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func post(ctx context.Context, h *hub.Hub, msg hub.HubMsg) bool {
	select {
	case h.Inbox() <- msg:
		return true
	case <-h.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// closeCode is 1000 when the owner finished on purpose and 1001 when this
// socket was dropped while the owner keeps running, so clients reconnect.
func closeCode(ownerDone <-chan struct{}) websocket.StatusCode {
	select {
	case <-ownerDone:
		return websocket.StatusNormalClosure
	default:
		return websocket.StatusGoingAway
	}
}

func write(ctx context.Context, conn *websocket.Conn, f protocol.Frame) error {
	payload, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func readUntilClosed(ctx context.Context, conn *websocket.Conn) error {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
	}
}

func logClose(log *zap.Logger, err error) {
	// Treat clean close/going-away as normal
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Info("socket closed", zap.Int("code", int(websocket.CloseStatus(err))))
	default:
		log.Debug("socket ended", zap.Error(err))
	}
}

func logger(opts Options) *zap.Logger {
	if opts.Logger == nil {
		return zap.NewNop()
	}
	return opts.Logger
}
