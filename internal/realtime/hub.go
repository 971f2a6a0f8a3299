// Package realtime streams dashboard activity over WebSocket.
//
// Clients receive an assessment event for every scored transaction and
// charts_rebuilt whenever the chart registry is rebuilt. A freshly connected
// client is first greeted with the animated headline statistics.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/risk"
)

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// EventType names a stream event.
type EventType string

const (
	EventAssessment    EventType = "assessment"
	EventStat          EventType = "stat"
	EventChartsRebuilt EventType = "charts_rebuilt"
)

// Event is one message on the stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AssessmentData is the payload of an assessment event.
type AssessmentData struct {
	TransactionID    string      `json:"transaction_id"`
	FraudProbability float64     `json:"fraud_probability"`
	RiskLevel        risk.Level  `json:"risk_level"`
	Action           risk.Action `json:"action"`
	Source           risk.Source `json:"source"`
	Merchant         string      `json:"merchant"`
	Category         string      `json:"category"`
	Amount           float64     `json:"amount"`
}

// Subscription filters what a client receives. The zero value receives
// everything.
type Subscription struct {
	EventTypes   []EventType `json:"eventTypes"`
	MinRiskLevel risk.Level  `json:"minRiskLevel"`
	Merchants    []string    `json:"merchants"`
}

// Greeting runs once per new client. It should return when ctx ends.
type Greeting func(ctx context.Context, emit func(*Event))

// Client is one WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc

	mu     sync.RWMutex
	sub    Subscription
	closed bool
}

// enqueue queues msg without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) subscription() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

// MaxClients caps concurrent connections.
const MaxClients = 1000

// Hub fans events out to connected clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{}
	maxClients int
	greeting   Greeting

	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// WithGreeting sets the per-client greeting.
func (h *Hub) WithGreeting(g Greeting) *Hub {
	h.greeting = g
	return h
}

// Run is the hub loop. It closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.totalClients.Add(1)
			if int64(n) > h.peakClients.Load() {
				h.peakClients.Store(int64(n))
			}
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("client connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("client disconnected", "total", n)

		case event := <-h.broadcast:
			h.totalEvents.Add(1)
			msg := serialize(event)
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if shouldSend(client.subscription(), event) && !client.enqueue(msg) {
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						client.close()
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

var levelRank = map[risk.Level]int{
	risk.LevelLow:    0,
	risk.LevelMedium: 1,
	risk.LevelHigh:   2,
}

func shouldSend(sub Subscription, event *Event) bool {
	if len(sub.EventTypes) > 0 {
		matched := false
		for _, t := range sub.EventTypes {
			if t == event.Type {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	data, ok := event.Data.(AssessmentData)
	if !ok {
		if p, isPtr := event.Data.(*AssessmentData); isPtr && p != nil {
			data, ok = *p, true
		}
	}
	if !ok {
		return true
	}

	if sub.MinRiskLevel != "" && levelRank[data.RiskLevel] < levelRank[sub.MinRiskLevel] {
		return false
	}
	if len(sub.Merchants) > 0 {
		for _, m := range sub.Merchants {
			if m == data.Merchant {
				return true
			}
		}
		return false
	}
	return true
}

func serialize(event *Event) []byte {
	data, _ := json.Marshal(event)
	return data
}

// Broadcast queues an event for all matching clients. It never blocks.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", event.Type)
	}
}

// BroadcastAssessment publishes a scored transaction.
func (h *Hub) BroadcastAssessment(in *risk.TransactionInput, a *risk.RiskAssessment, source risk.Source) {
	h.Broadcast(&Event{
		Type:      EventAssessment,
		Timestamp: time.Now().UTC(),
		Data: AssessmentData{
			TransactionID:    a.TransactionID,
			FraudProbability: a.FraudProbability,
			RiskLevel:        a.RiskLevel,
			Action:           a.Action,
			Source:           source,
			Merchant:         in.Merchant,
			Category:         in.Category,
			Amount:           in.Amount,
		},
	})
}

// BroadcastChartsRebuilt publishes the names of the live charts.
func (h *Hub) BroadcastChartsRebuilt(names []string) {
	h.Broadcast(&Event{
		Type:      EventChartsRebuilt,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"charts": names},
	})
}

// Stats returns hub counters.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]any{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades the request and attaches a client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		cancel: cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	if h.greeting != nil {
		go h.greeting(ctx, func(e *Event) {
			client.enqueue(serialize(e))
		})
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
