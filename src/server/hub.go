package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Hub fans refresh events out to websocket clients. It is an
// IRefreshSubscriber: OnRefreshEvent never blocks, a full queue drops the
// event and a slow client is disconnected.
type Hub struct {
	Logger *logger.Logger
	states interfaces.IRefreshTrigger

	clients    map[*Client]struct{}
	broadcast  chan *models.MStreamMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	connections atomic.Int64
	dropped     atomic.Uint64
}

// -----------------------------------------------------------------------------

func NewHub(log *logger.Logger, states interfaces.IRefreshTrigger) *Hub {
	return &Hub{
		Logger:  log,
		states:  states,
		clients: make(map[*Client]struct{}),
		// Buffered so bursts of refresh events never wait on the hub loop
		broadcast:  make(chan *models.MStreamMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Run is the hub loop; it owns the client set
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connections.Store(int64(len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.connections.Store(int64(len(h.clients)))

		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(message.Event.Dataset) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Client too slow, disconnect to keep the hub moving
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.connections.Store(int64(len(h.clients)))

		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.connections.Store(0)
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// -----------------------------------------------------------------------------

func (h *Hub) Connections() int {
	return int(h.connections.Load())
}

// Dropped counts events lost to a full broadcast queue
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// -----------------------------------------------------------------------------
// Refresh Subscriber Implementation
// -----------------------------------------------------------------------------

func (h *Hub) OnRefreshEvent(event models.MRefreshEvent) {
	msg := &models.MStreamMessage{Type: models.StreamUpdate, Event: &event}
	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (h *Hub) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan *models.MStreamMessage, 256),
	}
	// Initial state goes out before the client can see any update
	client.send <- h.initialMessage(nil)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

func (h *Hub) initialMessage(datasets map[string]struct{}) *models.MStreamMessage {
	msg := &models.MStreamMessage{Type: models.StreamInitial, States: []models.MRefreshState{}}
	if h.states == nil {
		return msg
	}
	for _, st := range h.states.States() {
		if datasets == nil {
			msg.States = append(msg.States, st)
			continue
		}
		if _, ok := datasets[st.Dataset]; ok {
			msg.States = append(msg.States, st)
		}
	}
	return msg
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command and answers with the
// matching refresh states. An empty dataset list subscribes to everything.
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	filter := client.subscribe(cmd.Datasets)

	select {
	case client.send <- h.initialMessage(filter):
	default:
		// the hub loop drops this client on its next broadcast
	}
}
