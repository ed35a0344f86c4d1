package realtime

import (
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAdPaused       EventType = "guardrail:ad_paused"
	EventAdSettled      EventType = "settlement:charged"
	EventLowBalance     EventType = "wallet:low_balance"
	EventPayoutRecorded EventType = "payout:recorded"
)

const alertsChannel = "promohub:wallet_alerts"

var (
	wsConnectionsGauge   = expvar.NewInt("wallet_ws_connections")
	wsEventsSentTotal    = expvar.NewInt("wallet_ws_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("wallet_ws_events_dropped_total")
)

// Event is pushed to an affiliate's open dashboards.
type Event struct {
	Type     EventType   `json:"type"`
	LiveAdID *uuid.UUID  `json:"live_ad_id,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	SentAt   time.Time   `json:"sent_at"`
}

type fanoutMessage struct {
	Email            string          `json:"email"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection is one websocket session for an affiliate.
type Connection struct {
	Email string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub tracks local sessions by affiliate email and fans events out to other
// API instances through Redis pub/sub. With a nil Redis client it is local only.
type Hub struct {
	connections map[string]map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[string]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, alertsChannel)
	}
	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.Email] == nil {
				h.connections[conn.Email] = make(map[*Connection]bool)
			}
			h.connections[conn.Email][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)
			log.Debug().Str("affiliate_email", conn.Email).Msg("wallet alerts connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.Email]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.Email)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleFanout(msg.Payload)
		}
	}
}

func (h *Hub) handleFanout(payload string) {
	var m fanoutMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return
	}
	if m.SenderInstanceID == h.instanceID {
		return
	}
	h.sendLocal(m.Email, m.Payload)
}

// Register adds a session. It reports false once the hub has shut down.
func (h *Hub) Register(conn *Connection) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a session. After shutdown it returns immediately.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// Notify delivers an event to every session of the affiliate on any instance.
func (h *Hub) Notify(email string, event Event) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal wallet alert")
		return
	}

	h.sendLocal(email, data)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(fanoutMessage{Email: email, Payload: data, SenderInstanceID: h.instanceID})
	if err != nil {
		return
	}
	if err := h.redis.Publish(h.ctx, alertsChannel, msg).Err(); err != nil {
		log.Warn().Err(err).Str("affiliate_email", email).Msg("wallet alert fan-out failed")
	}
}

func (h *Hub) sendLocal(email string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[email] {
		select {
		case conn.Send <- data:
			wsEventsSentTotal.Add(1)
		default:
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("affiliate_email", email).Msg("wallet alert buffer full")
		}
	}
}

// ConnectionCount returns number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
