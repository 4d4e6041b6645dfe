package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/notify"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Hub pushes every bus event to the connected dashboard websockets.
//
// Bus handlers run on the publisher's goroutine, so broadcast never blocks:
// each client has a bounded queue and events for a full queue are dropped.
// Dashboards reconcile on the next heartbeat or poll.
type Hub struct {
	bus            *notify.Bus
	sub            notify.Subscription
	originPatterns []string
	logf           func(format string, args ...any)

	mu      sync.Mutex
	clients map[string]*wsClient
}

type wsClient struct {
	id      string
	send    chan notify.Event
	dropped int
}

// NewHub subscribes to every event on bus.
func NewHub(bus *notify.Bus, originPatterns []string, logf func(format string, args ...any)) *Hub {
	h := &Hub{
		bus:            bus,
		originPatterns: originPatterns,
		logf:           logf,
		clients:        make(map[string]*wsClient),
	}
	h.sub = bus.SubscribeAll(h.broadcast)
	return h
}

func (h *Hub) broadcast(e notify.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- e:
		default:
			c.dropped++
		}
	}
	return nil
}

// Clients reports how many websockets are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches the hub from the bus. Connected clients stop receiving.
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.sub)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	c := &wsClient{id: uuid.NewString(), send: make(chan notify.Event, clientBuffer)}
	h.register(c)
	defer h.unregister(c)

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.send:
			if err := h.write(ctx, conn, e); err != nil {
				h.logf("ws: client %s write failed: %v", c.id, err)
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, e notify.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	dropped := c.dropped
	h.mu.Unlock()
	metrics.WebsocketClients.Dec()
	if dropped > 0 {
		h.logf("ws: client %s disconnected after dropping %d event(s)", c.id, dropped)
	}
}
