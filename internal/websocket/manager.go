// Package websocket implements the live reload hub: browsers connect over a
// WebSocket and receive css, reload and error messages after each rebuild.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
)

// WebSocketManager handles connection management and broadcasting.
//
// A hub goroutine owns registration, unregistration and broadcast; the
// clients map is additionally guarded by clientsMutex so counts can be read
// from HTTP handlers.
type WebSocketManager struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	logger          logging.Logger
	metrics         metrics.Recorder

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWebSocketManager creates a manager and starts its hub. A nil validator
// allows every origin; nil logger and recorder disable logging and metrics.
func NewWebSocketManager(
	originValidator OriginValidator,
	logger logging.Logger,
	recorder metrics.Recorder,
) *WebSocketManager {
	if logger == nil {
		logger = logging.Discard()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	manager := &WebSocketManager{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		logger:          logger.WithComponent("livereload"),
		metrics:         recorder,
		ctx:             ctx,
		cancel:          cancel,
	}

	go manager.runHub()

	return manager
}

// HandleWebSocket upgrades the request and registers the client.
func (wm *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if wm.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if wm.originValidator != nil && !wm.originValidator.IsAllowedOrigin(origin) {
		wm.logger.Warn(r.Context(), nil, "WebSocket connection rejected",
			"origin", origin,
			"remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Origins are checked above, so the library's own check is relaxed.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		wm.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan []byte, 256),
		remoteAddr: r.RemoteAddr,
	}

	hello, _ := json.Marshal(UpdateMessage{Type: MessageConnected, Timestamp: time.Now()})
	client.send <- hello

	select {
	case wm.register <- client:
	case <-wm.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
		_ = conn.Close(websocket.StatusTryAgainLater, "Server busy")
		return
	}

	go wm.handleClient(client)
}

func (wm *WebSocketManager) runHub() {
	for {
		select {
		case client := <-wm.register:
			wm.registerClient(client)

		case conn := <-wm.unregister:
			wm.unregisterClient(conn)

		case message := <-wm.broadcast:
			wm.broadcastToClients(message)

		case <-wm.ctx.Done():
			return
		}
	}
}

func (wm *WebSocketManager) registerClient(client *Client) {
	wm.clientsMutex.Lock()
	wm.clients[client.conn] = client
	count := len(wm.clients)
	wm.clientsMutex.Unlock()

	wm.metrics.SetLiveReloadClients(count)
	wm.logger.Debug(wm.ctx, "Live reload client connected",
		"remote", client.remoteAddr,
		"clients", count)
}

func (wm *WebSocketManager) unregisterClient(conn *websocket.Conn) {
	wm.clientsMutex.Lock()
	client, exists := wm.clients[conn]
	if exists {
		delete(wm.clients, conn)
		close(client.send)
	}
	count := len(wm.clients)
	wm.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		wm.metrics.SetLiveReloadClients(count)
		wm.logger.Debug(wm.ctx, "Live reload client disconnected", "clients", count)
	}
}

// broadcastToClients holds the read lock while sending so Shutdown cannot
// close a send channel underneath it. Sends never block.
func (wm *WebSocketManager) broadcastToClients(message []byte) {
	wm.clientsMutex.RLock()
	defer wm.clientsMutex.RUnlock()

	for _, client := range wm.clients {
		select {
		case client.send <- message:
		default:
			// Slow client; drop it rather than block the hub.
			go wm.requestUnregister(client.conn)
		}
	}
}

func (wm *WebSocketManager) requestUnregister(conn *websocket.Conn) {
	select {
	case wm.unregister <- conn:
	case <-wm.ctx.Done():
	}
}

func (wm *WebSocketManager) handleClient(client *Client) {
	defer wm.requestUnregister(client.conn)

	go wm.writeToClient(client)
	wm.readFromClient(client)
}

// readFromClient drains client messages. The protocol is server-to-browser
// only; reading keeps pongs flowing and detects closure. Dead peers are found
// by the writer's pings.
func (wm *WebSocketManager) readFromClient(client *Client) {
	for {
		_, _, err := client.conn.Read(wm.ctx)

		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway &&
				wm.ctx.Err() == nil {
				wm.logger.Debug(wm.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (wm *WebSocketManager) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(wm.ctx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				wm.logger.Debug(wm.ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(wm.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()

			if err != nil {
				return
			}

		case <-wm.ctx.Done():
			return
		}
	}
}

// BroadcastMessage sends a message to all connected clients.
func (wm *WebSocketManager) BroadcastMessage(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	data, err := json.Marshal(message)
	if err != nil {
		wm.logger.Error(wm.ctx, err, "Failed to marshal broadcast message")
		return
	}

	select {
	case wm.broadcast <- data:
	case <-wm.ctx.Done():
	default:
		wm.logger.Warn(wm.ctx, nil, "Broadcast channel full, dropping message", "type", message.Type)
	}
}

// NotifyCSS tells clients to swap their stylesheets for hrefs.
func (wm *WebSocketManager) NotifyCSS(hrefs []string) {
	wm.BroadcastMessage(UpdateMessage{Type: MessageCSS, Hrefs: hrefs})
}

// NotifyReload tells clients to reload the page.
func (wm *WebSocketManager) NotifyReload() {
	wm.BroadcastMessage(UpdateMessage{Type: MessageReload})
}

// NotifyError sends build diagnostics and the overlay markup to show.
func (wm *WebSocketManager) NotifyError(diagnostics []errors.BuildError, overlay string) {
	wm.BroadcastMessage(UpdateMessage{
		Type:    MessageError,
		Errors:  diagnostics,
		Content: overlay,
	})
}

// GetConnectedClients returns the number of connected clients
func (wm *WebSocketManager) GetConnectedClients() int {
	wm.clientsMutex.RLock()
	defer wm.clientsMutex.RUnlock()
	return len(wm.clients)
}

// Shutdown closes every client and stops the hub. It is safe to call more
// than once.
func (wm *WebSocketManager) Shutdown(ctx context.Context) error {
	wm.shutdownOnce.Do(func() {
		wm.cancel()

		wm.clientsMutex.Lock()
		for conn, client := range wm.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}
		wm.clients = make(map[*websocket.Conn]*Client)
		wm.clientsMutex.Unlock()

		wm.metrics.SetLiveReloadClients(0)
		wm.logger.Debug(ctx, "Live reload hub shut down")
	})

	return nil
}

// IsShutdown reports whether Shutdown has been called.
func (wm *WebSocketManager) IsShutdown() bool {
	return wm.ctx.Err() != nil
}
