// Package events streams batch events to websocket subscribers.
package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"toastem/internal/process"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	bufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans batch events out to the subscribers of each batch
type Hub struct {
	mu   sync.RWMutex
	subs map[uint]map[*Subscription]struct{}
}

// Subscription receives the encoded events of one batch on C
type Subscription struct {
	C       <-chan []byte
	send    chan []byte
	batchID uint
	hub     *Hub
	once    sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint]map[*Subscription]struct{})}
}

// Subscribe registers interest in one batch
func (h *Hub) Subscribe(batchID uint) *Subscription {
	send := make(chan []byte, bufferSize)
	sub := &Subscription{C: send, send: send, batchID: batchID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[batchID] == nil {
		h.subs[batchID] = make(map[*Subscription]struct{})
	}
	h.subs[batchID][sub] = struct{}{}
	return sub
}

// Close removes the subscription and closes its channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.batchID], s)
		if len(s.hub.subs[s.batchID]) == 0 {
			delete(s.hub.subs, s.batchID)
		}
		close(s.send)
	})
}

// Subscribers returns how many subscriptions a batch has
func (h *Hub) Subscribers(batchID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[batchID])
}

// Observe implements process.Observer. Slow subscribers lose events rather
// than stall the caller.
func (h *Hub) Observe(e process.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subs[e.BatchID]
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}
	for sub := range subs {
		select {
		case sub.send <- data:
		default:
			log.Printf("Event buffer full for batch %d, dropping %s", e.BatchID, e.Kind)
		}
	}
}

// Serve upgrades the request and streams the batch's events until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, batchID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	sub := h.Subscribe(batchID)
	go writePump(conn, sub)
	go readPump(conn, sub)
}

// readPump discards client messages; it only notices disconnects
func readPump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
