package services

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/metrics"
	"fasset-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Should check in production environment Origin
		return true
	},
}

// Connection is one websocket subscriber. A connection with a vault filter
// receives only that agent's events; without a filter it receives all.
type Connection struct {
	ID       string          `json:"id"`
	Vault    string          `json:"vault"`
	Conn     *websocket.Conn `json:"-"`
	Send     chan []byte     `json:"-"`
	LastPing time.Time       `json:"last_ping"`
}

// PushMessage is the envelope for every pushed event.
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Vault     string      `json:"vault,omitempty"`
	Data      interface{} `json:"data"`
}

// WebSocketPushService fans protocol events and price updates out to
// websocket subscribers.
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	vaultConns  map[string][]*Connection // key: vault filter
	allConns    map[string]*Connection   // unfiltered connections
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	mutex       sync.RWMutex
}

// NewWebSocketPushService creates the push service and starts its hub loop
func NewWebSocketPushService() *WebSocketPushService {
	service := &WebSocketPushService{
		connections: make(map[string]*Connection),
		vaultConns:  make(map[string][]*Connection),
		allConns:    make(map[string]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)

		case conn := <-s.unregister:
			s.handleUnregister(conn)

		case message := <-s.hub:
			s.handleBroadcast(message)
		}
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	if conn.Vault != "" {
		s.vaultConns[conn.Vault] = append(s.vaultConns[conn.Vault], conn)
	} else {
		s.allConns[conn.ID] = conn
	}
	metrics.WebSocketConnections.Set(float64(len(s.connections)))

	log.Printf("📱 WebSocket connection registered: vault=%q, connID=%s", conn.Vault, conn.ID)

	if conn.Send != nil {
		confirmMsg := PushMessage{
			Type:      "connection_established",
			Timestamp: time.Now().Format(time.RFC3339),
			MessageID: generateMessageID(),
			Vault:     conn.Vault,
			Data: map[string]interface{}{
				"connection_id": conn.ID,
				"vault_filter":  conn.Vault,
				"message":       "Real-time protocol event stream established",
			},
		}
		s.sendToConnection(conn, confirmMsg)
	}
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.connections[conn.ID]; !exists {
		return
	}
	delete(s.connections, conn.ID)
	delete(s.allConns, conn.ID)

	if conns, exists := s.vaultConns[conn.Vault]; exists {
		for i, c := range conns {
			if c.ID == conn.ID {
				s.vaultConns[conn.Vault] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(s.vaultConns[conn.Vault]) == 0 {
			delete(s.vaultConns, conn.Vault)
		}
	}
	metrics.WebSocketConnections.Set(float64(len(s.connections)))

	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}

	log.Printf("📱 WebSocket connection unregistered: vault=%q, connID=%s", conn.Vault, conn.ID)
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message: %v", err)
		return
	}

	targets := make([]*Connection, 0)
	for _, conn := range s.allConns {
		targets = append(targets, conn)
	}
	if message.Vault != "" {
		targets = append(targets, s.vaultConns[message.Vault]...)
	}
	if len(targets) == 0 {
		return
	}

	successCount := 0
	failedCount := 0
	for _, conn := range targets {
		select {
		case conn.Send <- data:
			successCount++
		default:
			// channel full or closed, reader will reap the connection
			failedCount++
		}
	}
	if failedCount > 0 {
		log.Printf("⚠️ [WebSocket] Delivery of %s: sent=%d, failed=%d", message.Type, successCount, failedCount)
	}
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message: %v", err)
		return
	}

	select {
	case conn.Send <- data:
	default:
		log.Printf("⚠️ Failed to send to connection: %s", conn.ID)
	}
}

// BroadcastEvent queues one protocol event for delivery.
func (s *WebSocketPushService) BroadcastEvent(eventType models.ProtocolEventType, vault string, payload interface{}) {
	s.hub <- PushMessage{
		Type:      string(eventType),
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: generateMessageID(),
		Vault:     vault,
		Data:      payload,
	}
}

// OnPriceChange implements PriceChangeListener: every oracle refresh is
// pushed to all unfiltered subscribers.
func (s *WebSocketPushService) OnPriceChange(symbol string, value string, decimals uint8) {
	s.hub <- PushMessage{
		Type:      "price_update",
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: generateMessageID(),
		Data: map[string]interface{}{
			"symbol":   symbol,
			"value":    value,
			"decimals": decimals,
		},
	}
}

// StartEventBridge forwards every protocol event published on NATS to the
// websocket subscribers. The bridge makes the push path identical for
// events produced by this process and by peers sharing the subject prefix.
func (s *WebSocketPushService) StartEventBridge(nc *clients.NATSClient) error {
	if nc == nil {
		log.Printf("📡 [WebSocket] NATS not configured, event bridge disabled")
		return nil
	}
	_, err := nc.Subscribe(">", func(msg *nats.Msg) {
		// subject is prefix.event_type
		parts := strings.Split(msg.Subject, ".")
		eventType := parts[len(parts)-1]

		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("⚠️ [WebSocket] Failed to decode %s event: %v", eventType, err)
			return
		}
		vault, _ := payload["vault"].(string)
		s.BroadcastEvent(models.ProtocolEventType(eventType), vault, payload)
	})
	if err != nil {
		return err
	}
	log.Printf("✅ [WebSocket] Event bridge subscribed to NATS")
	return nil
}

// HandleWebSocket upgrades the request and registers the connection. An
// empty vault subscribes to every event.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, vault string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	connection := &Connection{
		ID:       uuid.New().String(),
		Vault:    vault,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		LastPing: time.Now(),
	}

	s.register <- connection

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write message failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		s.unregister <- conn
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		_, _, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			break
		}
	}
}

// GetActiveConnections returns the current connection count.
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetVaultConnections returns the subscriber count for one vault filter.
func (s *WebSocketPushService) GetVaultConnections(vault string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if conns, exists := s.vaultConns[vault]; exists {
		return len(conns)
	}
	return 0
}

func generateMessageID() string {
	return "msg_" + uuid.New().String()
}
