// Package ws broadcasts curve events to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"curve_go/internal/domain"
	"curve_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Message is the JSON envelope sent to subscribers. Decimal fields are
// strings to keep full precision on the wire.
type Message struct {
	Type        string `json:"type"`
	Mint        string `json:"mint,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Name        string `json:"name,omitempty"`
	Side        string `json:"side,omitempty"`
	Price       string `json:"price,omitempty"`
	MarketCap   string `json:"market_cap,omitempty"`
	Volume      int64  `json:"volume,omitempty"`
	AssetAmount int64  `json:"asset_amount,omitempty"`
	At          int64  `json:"at"`
}

// Hub fans events out to all connected clients. Publishing never blocks:
// a full broadcast buffer drops the message rather than stalling settlement.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	metrics    *infra.Metrics
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started in its own goroutine.
func NewHub(metrics *infra.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		metrics:    metrics,
	}
}

// Run is the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.IncrementSubscribers()
			slog.Info("🔌 WebSocket client connected", slog.Int("total", total))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				h.metrics.DecrementSubscribers()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					h.metrics.DecrementSubscribers()
				}
			}
			h.mu.Unlock()
		}
	}
}

// PriceUpdate publishes a new spot price and market cap for a mint.
func (h *Hub) PriceUpdate(mint string, price, marketCap decimal.Decimal, volume int64) {
	h.publish(Message{
		Type:      "price_update",
		Mint:      mint,
		Price:     price.String(),
		MarketCap: marketCap.String(),
		Volume:    volume,
	})
}

// TradeExecuted publishes a settled trade.
func (h *Hub) TradeExecuted(symbol string, side domain.TradeSide, assetAmount int64, price decimal.Decimal) {
	h.publish(Message{
		Type:        "trade",
		Symbol:      symbol,
		Side:        string(side),
		AssetAmount: assetAmount,
		Price:       price.String(),
	})
}

// Graduated publishes a one-time graduation event for a mint.
func (h *Hub) Graduated(mint, name, symbol string) {
	h.publish(Message{
		Type:   "graduated",
		Mint:   mint,
		Name:   name,
		Symbol: symbol,
	})
}

func (h *Hub) publish(msg Message) {
	msg.At = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop rather than block the settlement path.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades an HTTP request to a subscriber connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	h.register <- conn

	// Read pump: keeps the connection alive and detects disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

var _ domain.NotificationSink = (*Hub)(nil)
