package websocketadapter

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	defaultBroadcastBuffer = 256
	defaultSendBuffer      = 16
	writeTimeout           = 5 * time.Second
)

// VerdictMessage is the JSON frame pushed to watchers of a call id.
type VerdictMessage struct {
	CallID          string    `json:"call_id"`
	Verdict         string    `json:"verdict"`
	LegitimateCount int       `json:"legitimate_count"`
	FraudulentCount int       `json:"fraudulent_count"`
	TotalVotes      int       `json:"total_votes"`
	Message         string    `json:"message"`
	Revision        uint64    `json:"revision"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewVerdictMessage(update entities.VerdictUpdate) VerdictMessage {
	tally := entities.Tally{
		CallID:          update.CallID,
		LegitimateCount: update.LegitimateCount,
		FraudulentCount: update.FraudulentCount,
		TotalVotes:      update.TotalVotes,
	}
	return VerdictMessage{
		CallID:          update.CallID,
		Verdict:         string(update.Verdict),
		LegitimateCount: update.LegitimateCount,
		FraudulentCount: update.FraudulentCount,
		TotalVotes:      update.TotalVotes,
		Message:         tally.Message(),
		Revision:        update.Revision,
		OccurredAt:      update.OccurredAt.UTC(),
	}
}

type client struct {
	callID string
	send   chan VerdictMessage
}

// hubEvent is either a single verdict update or, when reset is set, the
// clearing of every call id at update.Revision.
type hubEvent struct {
	update entities.VerdictUpdate
	reset  bool
}

// Hub fans verdict updates out to websocket watchers grouped by call id. The
// client table is owned by the Run goroutine; everything else talks to it over
// channels.
type Hub struct {
	clients    map[string]map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan hubEvent
	done       chan struct{}

	active         atomic.Int64
	sendBuffer     int
	originPatterns []string
	logger         *slog.Logger
}

type HubConfig struct {
	BroadcastBuffer int
	SendBuffer      int
	OriginPatterns  []string
	Logger          *slog.Logger
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = defaultBroadcastBuffer
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		clients:        make(map[string]map[*client]struct{}),
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan hubEvent, cfg.BroadcastBuffer),
		done:           make(chan struct{}),
		sendBuffer:     cfg.SendBuffer,
		originPatterns: cfg.OriginPatterns,
		logger:         cfg.Logger,
	}
}

// Run owns the client table until ctx is cancelled. Open connections are
// closed with StatusGoingAway afterwards.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			watchers := h.clients[c.callID]
			if watchers == nil {
				watchers = make(map[*client]struct{})
				h.clients[c.callID] = watchers
			}
			watchers[c] = struct{}{}
			h.active.Add(1)
		case c := <-h.unregister:
			h.drop(c)
		case event := <-h.broadcast:
			if !event.reset {
				message := NewVerdictMessage(event.update)
				for c := range h.clients[event.update.CallID] {
					h.deliver(c, message)
				}
				continue
			}
			for callID, watchers := range h.clients {
				message := NewVerdictMessage(entities.NewVerdictUpdate(
					entities.Tally{CallID: callID, Revision: event.update.Revision},
					event.update.OccurredAt,
				))
				for c := range watchers {
					h.deliver(c, message)
				}
			}
		}
	}
}

func (h *Hub) deliver(c *client, message VerdictMessage) {
	select {
	case c.send <- message:
	default:
		h.logger.Warn("verdict watcher too slow, disconnecting",
			"event", "register_watch_slow_consumer",
			"module", "trust-safety/call-vote-register",
			"layer", "adapter",
			"call_id", c.callID,
		)
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	watchers := h.clients[c.callID]
	if watchers == nil {
		return
	}
	if _, ok := watchers[c]; !ok {
		return
	}
	delete(watchers, c)
	close(c.send)
	h.active.Add(-1)
	if len(watchers) == 0 {
		delete(h.clients, c.callID)
	}
}

// NotifyVerdict queues update for broadcast. It never blocks the caller; when
// the broadcast buffer is full the update is dropped and the next one for the
// same call supersedes it.
func (h *Hub) NotifyVerdict(_ context.Context, update entities.VerdictUpdate) {
	h.enqueue(hubEvent{update: update})
}

// NotifyReset tells every watcher that its call id has no votes as of
// revision.
func (h *Hub) NotifyReset(_ context.Context, revision uint64, occurredAt time.Time) {
	h.enqueue(hubEvent{
		update: entities.VerdictUpdate{Revision: revision, OccurredAt: occurredAt},
		reset:  true,
	})
}

func (h *Hub) enqueue(event hubEvent) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("verdict broadcast buffer full, update dropped",
			"event", "register_watch_broadcast_dropped",
			"module", "trust-safety/call-vote-register",
			"layer", "adapter",
			"call_id", event.update.CallID,
			"reset", event.reset,
		)
	}
}

// Subscribers reports the number of open watch connections.
func (h *Hub) Subscribers() int {
	return int(h.active.Load())
}

// InitialVerdict loads the verdict a new watcher is sent first.
type InitialVerdict func(ctx context.Context) (entities.VerdictUpdate, error)

// Serve upgrades the request and streams verdict updates for callID until the
// peer disconnects or the hub stops. initial, when non-nil, is loaded after the
// watcher is registered and sent first. Messages carrying a revision at or
// below the last one written are skipped.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, callID string, initial InitialVerdict) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("verdict watch upgrade failed",
			"event", "register_watch_upgrade_failed",
			"module", "trust-safety/call-vote-register",
			"layer", "adapter",
			"call_id", callID,
			"error", err.Error(),
		)
		return
	}
	defer conn.CloseNow()

	c := &client{callID: callID, send: make(chan VerdictMessage, h.sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	// Watchers never send data; CloseRead handles control frames and cancels
	// readCtx once the peer goes away.
	readCtx := conn.CloseRead(r.Context())

	var seen uint64
	if initial != nil {
		update, err := initial(readCtx)
		if err != nil {
			h.logger.Warn("verdict watch initial state failed",
				"event", "register_watch_initial_failed",
				"module", "trust-safety/call-vote-register",
				"layer", "adapter",
				"call_id", callID,
				"error", err.Error(),
			)
			_ = conn.Close(websocket.StatusInternalError, "initial verdict unavailable")
			return
		}
		writeCtx, cancel := context.WithTimeout(readCtx, writeTimeout)
		err = wsjson.Write(writeCtx, conn, NewVerdictMessage(update))
		cancel()
		if err != nil {
			return
		}
		seen = update.Revision
	}
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "watcher too slow")
				return
			}
			if message.Revision != 0 && message.Revision <= seen {
				continue
			}
			seen = max(seen, message.Revision)
			writeCtx, cancel := context.WithTimeout(readCtx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, message)
			cancel()
			if err != nil {
				return
			}
		case <-readCtx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

var _ ports.VerdictNotifier = (*Hub)(nil)
