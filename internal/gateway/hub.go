// Package gateway serves the paper-trading dashboard: a WebSocket stream of
// bot updates plus a small REST API over the live session and the trade
// journal.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"niftybot/internal/markethours"
	"niftybot/internal/orchestrator"
)

// Hub fans bot updates out to WebSocket clients. Every envelope carries a
// global sequence number so clients can detect gaps and ask for a replay.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // by update kind
	seq     int64
	replay  *ReplayBuffer
	now     func() time.Time
}

type latestEntry struct {
	Envelope []byte
	Data     json.RawMessage
	Seq      int64
}

// NewHub creates a hub keeping replaySize envelopes for reconnects.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(replaySize),
		now:     time.Now,
	}
}

// Run broadcasts every update from the bot until updates is closed or ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context, updates <-chan orchestrator.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u.Data)
			if err != nil {
				log.Printf("[gateway] encode %s update: %v", u.Kind, err)
				continue
			}
			h.Broadcast(u.Kind, data)
		}
	}
}

// Broadcast wraps data in an envelope and sends it to every client:
//
//	{"kind":"status","data":{...},"ts":"...","seq":N}
func (h *Hub) Broadcast(kind string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := envelope(kind, data, now, seq)
	h.latest[kind] = latestEntry{Envelope: env, Data: data, Seq: seq}
	h.replay.Push(seq, env)
	for c := range h.clients {
		c.enqueue(env)
	}
	h.mu.Unlock()
}

func envelope(kind string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(kind)+len(data)+96)
	buf = append(buf, `{"kind":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Register attaches an upgraded connection. A client that saw lastSeq
// before reconnecting gets the envelopes it missed; everyone else gets the
// latest envelope of each kind.
func (h *Hub) Register(conn *websocket.Conn, lastSeq int64) *Client {
	c := newClient(conn, h)

	h.mu.Lock()
	c.sendInitial(h, lastSeq)
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	go c.writePump()
	go c.readPump()
	return c
}

// sendInitial runs with h.mu held so no broadcast can interleave.
func (c *Client) sendInitial(h *Hub, lastSeq int64) {
	if lastSeq > 0 {
		if missed, ok := h.replay.Since(lastSeq); ok {
			for _, e := range missed {
				c.enqueue(e.Data)
			}
			return
		}
	}
	for _, e := range h.latest {
		c.enqueue(e.Envelope)
	}
}

// RemoveClient detaches c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Latest returns the most recent payload of each update kind.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}

// Missed returns buffered envelopes with seq in [from, to].
func (h *Hub) Missed(from, to int64) [][]byte {
	entries := h.replay.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMarketBroadcast pushes the NSE session state to clients every
// interval. These messages carry no seq and are not replayed.
func (h *Hub) StartMarketBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := h.now()
			msg, _ := json.Marshal(map[string]interface{}{
				"kind":         "market",
				"marketOpen":   markethours.IsMarketOpen(now),
				"marketStatus": markethours.StatusString(now),
				"clients":      h.ClientCount(),
			})
			h.mu.RLock()
			for c := range h.clients {
				c.enqueue(msg)
			}
			h.mu.RUnlock()
		}
	}
}
