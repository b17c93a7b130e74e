// Package server exposes the offline subsystem to the extension UI over a
// local HTTP/WebSocket surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/gateway"
	"github.com/mdnaeem95/stupify-extension/queue"
	"github.com/mdnaeem95/stupify-extension/syncer"
)

// Server serves the extension UI: REST endpoints for stats and queue
// inspection, a manual sync trigger, and a WebSocket stream of sync-status
// and connectivity changes.
type Server struct {
	gateway *gateway.Gateway
	engine  *syncer.Engine
	monitor *connectivity.Monitor
	queue   *queue.Queue
	logger  *zap.SugaredLogger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpServer   *http.Server
	unsubscribes []func()
}

// New creates a server over the assembled offline components.
func New(gw *gateway.Gateway, engine *syncer.Engine, monitor *connectivity.Monitor, q *queue.Queue, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		gateway: gw,
		engine:  engine,
		monitor: monitor,
		queue:   q,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local-only server; the extension connects from its own origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Routes returns the HTTP handler for the UI surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/offline/stats", s.handleStats)
	mux.HandleFunc("/api/offline/sync", s.handleSync)
	mux.HandleFunc("/api/offline/queue", s.handleQueue)
	mux.HandleFunc("/api/offline/connectivity", s.handleConnectivity)
	mux.HandleFunc("/api/offline/settings", s.handleSettings)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start begins listening on the given port and wires status broadcasting.
// Blocks until the listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.startBroadcasters()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Offline server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Shutdown stops broadcasting, disconnects clients, and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, unsub := range s.unsubscribes {
		unsub()
	}
	s.unsubscribes = nil

	s.cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	s.wg.Wait()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
	}
	return nil
}

// handleWebSocket upgrades the connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, 32),
		id:     uuid.NewString()[:8],
	}

	s.mu.Lock()
	s.clients[client] = true
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("UI client connected", "client_id", client.id, "clients", clientCount)

	// Seed the new client with the current state so it doesn't wait for the
	// next change.
	client.enqueue(statusMessage(s.engine.Status()))
	client.enqueue(connectivityMessage(s.monitor.IsOffline()))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// unregister removes a disconnected client.
func (s *Server) unregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("UI client disconnected", "client_id", client.id, "clients", clientCount)
}
