// Package hub is the simulator's registry of live matches and of the
// notification sockets open per user.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/w1sec0d/courseclash-duels/internal/protocol"
	"github.com/w1sec0d/courseclash-duels/internal/sim/engine"
	"github.com/w1sec0d/courseclash-duels/internal/sim/match"
)

type HubMsg interface{ isHubMsg() }

type CreateMatch struct {
	ID    string
	State engine.State
	Reply chan *match.Match
}

type GetMatch struct {
	ID    string
	Reply chan *match.Match
}

type RemoveMatch struct {
	ID string
}

// Subscribe registers a notification outbox for a user. A user may have
// several open at once.
type Subscribe struct {
	UserID string
	Outbox chan protocol.Notification
}

type Unsubscribe struct {
	UserID string
	Outbox chan protocol.Notification
}

// Notify fans a frame out to every outbox of UserID. Reply (optional)
// receives the number of outboxes that took it.
type Notify struct {
	UserID string
	Frame  protocol.Notification
	Reply  chan int
}

type ShutdownHub struct{}

func (CreateMatch) isHubMsg() {}
func (GetMatch) isHubMsg()    {}
func (RemoveMatch) isHubMsg() {}
func (Subscribe) isHubMsg()   {}
func (Unsubscribe) isHubMsg() {}
func (Notify) isHubMsg()      {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox       chan HubMsg
	matches     map[string]*match.Match
	subscribers map[string]map[chan protocol.Notification]struct{}
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:       make(chan HubMsg, 64),
		matches:     make(map[string]*match.Match),
		subscribers: make(map[string]map[chan protocol.Notification]struct{}),
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			// Nothing is answered once Done is closed.
			if h.ctx.Err() != nil {
				h.shutdown()
				return
			}
			switch msg := m.(type) {
			case CreateMatch:
				if mt := h.matches[msg.ID]; mt != nil {
					msg.Reply <- mt
					break
				}
				mt := match.New(h.ctx, msg.ID, msg.State, h.removeLater, h.log)
				h.matches[msg.ID] = mt
				h.log.Info("match created", zap.String("duel_id", msg.ID))
				msg.Reply <- mt

			case GetMatch:
				msg.Reply <- h.matches[msg.ID] // May be nil

			case RemoveMatch:
				delete(h.matches, msg.ID)

			case Subscribe:
				subs := h.subscribers[msg.UserID]
				if subs == nil {
					subs = make(map[chan protocol.Notification]struct{})
					h.subscribers[msg.UserID] = subs
				}
				subs[msg.Outbox] = struct{}{}

			case Unsubscribe:
				if subs, ok := h.subscribers[msg.UserID]; ok {
					if _, ok := subs[msg.Outbox]; ok {
						delete(subs, msg.Outbox)
						close(msg.Outbox)
					}
					if len(subs) == 0 {
						delete(h.subscribers, msg.UserID)
					}
				}

			case Notify:
				n := h.notify(msg.UserID, msg.Frame)
				if msg.Reply != nil {
					msg.Reply <- n
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) notify(userID string, f protocol.Notification) int {
	delivered := 0
	for ch := range h.subscribers[userID] {
		select {
		case ch <- f:
			delivered++
		default:
			// Subscriber is slow/full - drop them.
			h.log.Warn("dropping slow notification subscriber", zap.String("user_id", userID))
			delete(h.subscribers[userID], ch)
			close(ch)
		}
	}
	return delivered
}

// removeLater runs on a match goroutine, so it must not block on the hub.
func (h *Hub) removeLater(id string) {
	go func() {
		select {
		case h.inbox <- RemoveMatch{ID: id}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) shutdown() {
	h.cancel() // matches stop with the hub context
	for userID, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, userID)
	}
	clear(h.matches)
}
