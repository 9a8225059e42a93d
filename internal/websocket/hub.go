// Package websocket fans observable engine state out to connected clients.
// Each owner forms a room; every attached device (phone, tablet, trainer
// dashboard) holds one connection and receives the same state stream.
package websocket

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
)

const maxClientsPerOwner = 50

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	ownerID uuid.UUID
	conn    *websocket.Conn
	errCh   chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	ownerID uuid.UUID
	conn    *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	ownerID uuid.UUID
	data    []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	ownerID uuid.UUID
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// --- Hub ---

// Hub is a command-channel actor owning all rooms. All map access happens
// on the run goroutine, so no locks are needed.
type Hub struct {
	cmdCh      chan hubCmd
	rooms      map[uuid.UUID]map[*websocket.Conn]*clientWriter
	limiter    *connLimiter
	onLastGone func(ownerID uuid.UUID)
}

// NewHub starts the hub. maxClients caps total connections across all owners
// (<= 0 for no cap). onLastGone, if non-nil, fires when an owner's last
// client disconnects (used to detach the owner's engine).
func NewHub(maxClients int, onLastGone func(ownerID uuid.UUID)) *Hub {
	hub := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		rooms:      make(map[uuid.UUID]map[*websocket.Conn]*clientWriter),
		limiter:    newConnLimiter(int64(maxClients)),
		onLastGone: onLastGone,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			room := h.rooms[c.ownerID]
			if len(room) >= maxClientsPerOwner {
				c.errCh <- fmt.Errorf("too many clients for owner %s", c.ownerID)
				continue
			}
			if !h.limiter.acquire() {
				c.errCh <- fmt.Errorf("connection limit reached (%d clients)", h.limiter.count())
				continue
			}
			if room == nil {
				room = make(map[*websocket.Conn]*clientWriter)
				h.rooms[c.ownerID] = room
			}
			room[c.conn] = newClientWriter(c.conn)
			metrics.WebSocketClients.Inc()
			c.errCh <- nil

		case cmdUnregister:
			room := h.rooms[c.ownerID]
			cw, ok := room[c.conn]
			if !ok {
				continue
			}
			cw.stop()
			delete(room, c.conn)
			h.limiter.release()
			metrics.WebSocketClients.Dec()
			if len(room) == 0 {
				delete(h.rooms, c.ownerID)
				if h.onLastGone != nil {
					h.onLastGone(c.ownerID)
				}
			}

		case cmdBroadcast:
			for _, cw := range h.rooms[c.ownerID] {
				select {
				case cw.sendCh <- c.data:
				default:
					// Slow client; the next snapshot supersedes this one.
				}
			}

		case cmdClientCount:
			c.replyCh <- len(h.rooms[c.ownerID])

		case cmdStop:
			for _, room := range h.rooms {
				for _, cw := range room {
					cw.stop()
					h.limiter.release()
				}
			}
			h.rooms = make(map[uuid.UUID]map[*websocket.Conn]*clientWriter)
			return
		}
	}
}

// Register adds a connection to the owner's room.
func (h *Hub) Register(ownerID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{ownerID: ownerID, conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection and closes it.
func (h *Hub) Unregister(ownerID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{ownerID: ownerID, conn: conn}
}

// Broadcast sends data to every client in the owner's room.
func (h *Hub) Broadcast(ownerID uuid.UUID, data []byte) {
	select {
	case h.cmdCh <- cmdBroadcast{ownerID: ownerID, data: data}:
	default:
		slog.Warn("Hub command queue full, dropping broadcast", "owner_id", ownerID.String())
	}
}

// ClientCount reports the owner's connected clients.
func (h *Hub) ClientCount(ownerID uuid.UUID) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{ownerID: ownerID, replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and terminates the hub.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
