package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/events"
)

// WSHub pushes deposit events to clients watching a transaction hash.
type WSHub struct {
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
}

func NewWSHub(subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	if err := h.subscriber.Subscribe(ctx, events.StreamDeposits, h.dispatch); err != nil {
		h.log.Error("ws hub subscribe failed", zap.Error(err))
	}
}

func (h *WSHub) dispatch(event events.Event) {
	if event.Key == "" {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[watchKey(event.Key)] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *WSHub) watchers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[watchKey(key)])
}

func watchKey(txHash string) string {
	return strings.ToLower(txHash)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tx := conn.Query("tx")
	if len(tx) != 2+2*common.HashLength || !strings.HasPrefix(tx, "0x") {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"tx must be a transaction hash"}`))
		conn.Close()
		return
	}
	key := watchKey(tx)

	h.mu.Lock()
	h.connections[key] = append(h.connections[key], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[key]
		for i, c := range conns {
			if c == conn {
				h.connections[key] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[key]) == 0 {
			delete(h.connections, key)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
