package stakingd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stakeledger/core/types"
)

const (
	wsWriteTimeout     = 10 * time.Second
	defaultBacklogSize = 64
	subscriberBuffer   = 32
)

// EventHub fans committed ledger events out to stream subscribers and keeps a
// short backlog for clients that connect late.
type EventHub struct {
	mu      sync.Mutex
	size    int
	backlog []*types.Event
	subs    map[int]chan *types.Event
	nextID  int
}

// NewEventHub returns a hub retaining up to backlog events.
func NewEventHub(backlog int) *EventHub {
	if backlog <= 0 {
		backlog = defaultBacklogSize
	}
	return &EventHub{size: backlog, subs: make(map[int]chan *types.Event)}
}

// Publish delivers evt to every subscriber. Subscribers that fall behind are
// disconnected rather than blocking the ledger.
func (h *EventHub) Publish(evt *types.Event) {
	if h == nil || evt == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backlog = append(h.backlog, evt)
	if len(h.backlog) > h.size {
		h.backlog = h.backlog[len(h.backlog)-h.size:]
	}
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
}

// Subscribe registers a subscriber and returns the current backlog. The
// returned cancel function must be called to release the subscription.
func (h *EventHub) Subscribe() (<-chan *types.Event, []*types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan *types.Event, subscriberBuffer)
	h.subs[id] = ch
	backlog := append([]*types.Event(nil), h.backlog...)
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			close(existing)
			delete(h.subs, id)
		}
	}
	return ch, backlog, cancel
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	hub := s.proc.Events()
	if hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, hub, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, hub *EventHub, filter string) error {
	updates, backlog, cancel := hub.Subscribe()
	defer cancel()

	for _, evt := range backlog {
		if err := writeEvent(ctx, conn, evt, filter); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagged")
			}
			if err := writeEvent(ctx, conn, evt, filter); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event, filter string) error {
	if filter != "" && evt.Type != filter {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
