// WebSocket hub for real-time alert broadcasting.

package surveillance

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/surveillance-engine/internal/metrics"
	"github.com/atmx/surveillance-engine/internal/model"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type           string    `json:"type"`
	AlertID        string    `json:"alert_id"`
	ScenarioID     string    `json:"scenario_id"`
	InstrumentID   string    `json:"instrument_id"`
	MarketID       string    `json:"market_id"`
	PartyID        string    `json:"party_id,omitempty"`
	Reason         string    `json:"reason"`
	NearID         string    `json:"near_id,omitempty"`
	FarOrderID     string    `json:"far_order_id,omitempty"`
	AlertTimestamp time.Time `json:"alert_timestamp"`
}

func alertMessage(a model.Alert) WSMessage {
	return WSMessage{
		Type:           "alert_raised",
		AlertID:        a.AlertID,
		ScenarioID:     a.ScenarioID,
		InstrumentID:   a.InstrumentID,
		MarketID:       a.MarketID,
		PartyID:        a.PartyID,
		Reason:         string(a.Description),
		NearID:         a.NearID,
		FarOrderID:     a.FarOrderID,
		AlertTimestamp: a.AlertTimestamp,
	}
}

// WSHub fans newly raised alerts out to connected surveillance clients.
type WSHub struct {
	clients    map[*websocket.Conn]struct{}
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	origins    map[string]struct{}
	anyOrigin  bool
}

// NewWSHub creates a hub accepting browser connections from the given
// origins ("https://desk.example.com"). "*" accepts any origin. With no
// origins only same-host pages may connect. Requests without an Origin
// header (non-browser clients) are always accepted.
func NewWSHub(allowedOrigins ...string) *WSHub {
	h := &WSHub{
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		origins:    make(map[string]struct{}),
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			h.anyOrigin = true
		default:
			h.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin {
		return true
	}
	if _, ok := h.origins[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			n := h.add(conn)
			slog.Info("ws client connected", "total", n)
		case conn := <-h.unregister:
			h.remove(conn)
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *WSHub) add(conn *websocket.Conn) int {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	return n
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
}

// fanout writes msg to every client and drops the ones that fail.
func (h *WSHub) fanout(msg []byte) {
	h.mu.Lock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
}

func (h *WSHub) connected(conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[conn]
	return ok
}

// Broadcast queues an alert for all connected clients. When the queue is
// full the alert is dropped for streaming; it remains queryable.
func (h *WSHub) Broadcast(a model.Alert) {
	data, err := json.Marshal(alertMessage(a))
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast queue full, alert not streamed", "alert_id", a.AlertID)
	}
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// The stream is server-to-client only; inbound messages are discarded.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade rejected", "err", err, "origin", r.Header.Get("Origin"))
		return
	}

	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !h.connected(conn) {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}
