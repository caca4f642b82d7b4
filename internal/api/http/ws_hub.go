package apihttp

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"jumpcut/internal/domain"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsSendBuffer   = 256
	wsReplayLimit  = 200
	wsMaxReadBytes = 512
)

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// wsEvent is a marshalled message plus the job it concerns. An empty jobID
// marks an event that every client receives.
type wsEvent struct {
	jobID   domain.JobID
	payload []byte
}

// wsClient receives every event, or only events of one job when jobID is set.
type wsClient struct {
	hub   *wsHub
	conn  *websocket.Conn
	send  chan []byte
	jobID domain.JobID
}

func (c *wsClient) wants(ev wsEvent) bool {
	return c.jobID == "" || ev.jobID == "" || c.jobID == ev.jobID
}

// wsHub fans job and log events out to websocket clients. The client set is
// owned by run; joined tracks its size for publishers.
type wsHub struct {
	clients map[*wsClient]struct{}
	joined  atomic.Int64
	events  chan wsEvent
	replays chan wsReplay
	join    chan *wsClient
	leave   chan *wsClient
	done    chan struct{}
	logger  *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients: make(map[*wsClient]struct{}),
		events:  make(chan wsEvent, wsSendBuffer),
		replays: make(chan wsReplay),
		join:    make(chan *wsClient),
		leave:   make(chan *wsClient),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			h.shutdown()
			return
		case c := <-h.join:
			h.clients[c] = struct{}{}
			h.joined.Store(int64(len(h.clients)))
			h.logger.Debug("ws client connected",
				slog.String("jobId", string(c.jobID)),
				slog.Int("total", len(h.clients)),
			)
		case c := <-h.leave:
			if _, ok := h.clients[c]; ok {
				h.evict(c)
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		case r := <-h.replays:
			if _, ok := h.clients[r.client]; ok {
				h.deliverBacklog(r)
			}
		case ev := <-h.events:
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- ev.payload:
				default:
					h.logger.Debug("ws client too slow, dropping", slog.String("jobId", string(c.jobID)))
					h.evict(c)
				}
			}
		}
	}
}

func (h *wsHub) shutdown() {
	deadline := time.Now().Add(2 * time.Second)
	bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage, bye, deadline)
		}
		h.evict(c)
	}
}

func (h *wsHub) evict(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
	h.joined.Store(int64(len(h.clients)))
}

// subscribe hands c to the hub. It reports false once the hub is closed.
func (h *wsHub) subscribe(c *wsClient) bool {
	select {
	case h.join <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *wsHub) unsubscribe(c *wsClient) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}

// Close disconnects every client. Calling it twice is safe.
func (h *wsHub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *wsHub) clientCount() int {
	return int(h.joined.Load())
}

// Publish queues a typed message for clients interested in jobID. It never
// blocks; when the queue is full the event is dropped.
func (h *wsHub) Publish(jobID domain.JobID, msgType string, data interface{}) {
	if h.clientCount() == 0 {
		return
	}
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	select {
	case h.events <- wsEvent{jobID: jobID, payload: payload}:
	default:
	}
}

type wsReplay struct {
	client  *wsClient
	entries []domain.LogEntry
}

// Replay queues log backlog for c. Entries may arrive after, or repeat,
// entries already delivered live; Seq orders and identifies them.
func (h *wsHub) Replay(c *wsClient, entries []domain.LogEntry) {
	if len(entries) == 0 {
		return
	}
	select {
	case h.replays <- wsReplay{client: c, entries: entries}:
	case <-h.done:
	}
}

func (h *wsHub) deliverBacklog(r wsReplay) {
	for i := range r.entries {
		payload, err := json.Marshal(wsMessage{Type: "log", Data: r.entries[i]})
		if err != nil {
			continue
		}
		select {
		case r.client.send <- payload:
		default:
			h.evict(r.client)
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients never send data.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(wsMaxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
