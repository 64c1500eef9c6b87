package notifier

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/pubsub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub serves the push channel's websocket upgrade endpoint for locally
// connected clients and relays every topic published across the cluster
// via infrastructure/pubsub.PushHub, so a client connected to any node
// sees monitor:update and incident:{opened,resolved} events regardless of
// which node produced them (spec §5, §1's "decentralized... platform").
type Hub struct {
	push   *pubsub.PushHub
	logger *logging.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{} // topic -> subscribed clients
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	topics []string
}

// NewHub constructs a Hub. push may be nil in single-node test setups; the
// hub then only relays events it receives directly via Broadcast.
func NewHub(push *pubsub.PushHub, logger *logging.Logger) *Hub {
	return &Hub{
		push:   push,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*wsClient]struct{}),
	}
}

// Register mounts the websocket upgrade endpoint on router.
func (h *Hub) Register(router *mux.Router) {
	router.HandleFunc("/ws/{topic}", h.handleUpgrade)
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.WithContext(r.Context()).WithField("error", err.Error()).Warn("websocket upgrade failed")
		}
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64), topics: []string{topic}}
	h.subscribe(topic, client)

	ctx, cancel := context.WithCancel(r.Context())
	go h.pumpFromCluster(ctx, topic, client)
	go client.writePump(cancel)
	client.readPump(func() { h.unsubscribe(topic, client); cancel() })
}

// pumpFromCluster forwards cross-node events for topic to client until ctx
// is cancelled (client disconnected) or the subscription errors.
func (h *Hub) pumpFromCluster(ctx context.Context, topic string, client *wsClient) {
	if h.push == nil {
		<-ctx.Done()
		return
	}
	msgs, stop, err := h.push.Subscribe(ctx, topic)
	if err != nil {
		return
	}
	defer stop()
	for {
		select {
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case client.send <- payload:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) subscribe(topic string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*wsClient]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) unsubscribe(topic string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[topic], client)
	client.close()
}

// Broadcast delivers payload to every locally connected client subscribed
// to topic, bypassing the Redis round trip. Publish (via ports.PushChannel)
// is still required for fanout to clients connected to other nodes.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

func (c *wsClient) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains the connection for control frames (pong, close);
// the push channel is server-to-client only, so any application-level
// message from the client is discarded.
func (c *wsClient) readPump(onClose func()) {
	defer onClose()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	defer func() { recover() }()
	close(c.send)
}
