package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler broadcasts every progress event across jobs to connected
// clients. Each connection gets its own write mutex since gorilla conns do
// not allow concurrent writers.
type WebSocketHandler struct {
	events   interfaces.EventService
	logger   arbor.ILogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(events interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	readBuffer := 1024
	writeBuffer := 4096
	if config != nil {
		if config.ReadBufferSize > 0 {
			readBuffer = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			writeBuffer = config.WriteBufferSize
		}
	}

	return &WebSocketHandler{
		events:  events,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local development
			},
		},
	}
}

// ServeWS upgrades the connection and forwards global progress events until
// the client disconnects.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	stream, unsubscribe := h.events.SubscribeAll()

	done := make(chan struct{})
	go h.readLoop(conn, done)

	go func() {
		defer func() {
			unsubscribe()
			h.removeClient(conn)
		}()
		for {
			select {
			case <-done:
				return
			case event, open := <-stream:
				if !open {
					return
				}
				if err := h.writeEvent(conn, event); err != nil {
					return
				}
			}
		}
	}()
}

// readLoop drains client frames so close and ping control messages are
// processed. Closing done stops the write loop.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writeEvent(conn *websocket.Conn, event models.ProgressEvent) error {
	h.mu.RLock()
	mu, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
	h.logger.Debug().Msg("WebSocket client disconnected")
}
