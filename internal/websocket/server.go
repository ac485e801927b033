// internal/websocket/server.go
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is controlled by the auth key
	},
}

// Options configures a Server
type Options struct {
	Addr     string
	AuthKey  string
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server exposes the RPC router over WebSocket plus /health and /metrics
type Server struct {
	opts       Options
	addr       string
	router     *Router
	logger     *slog.Logger
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a server
func NewServer(router *Router, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		opts:    opts,
		router:  router,
		logger:  logger.With("component", "websocket"),
		clients: make(map[string]*Client),
	}
}

// Handler returns the HTTP handler serving /ws, /health and /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start listens on the configured address and returns the bound address
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := s.opts.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.addr = listener.Addr().String()

	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", s.addr)
	return s.addr, nil
}

// Stop closes every client and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.AuthKey == "" {
		return true
	}
	if r.Header.Get("X-Auth-Key") == s.opts.AuthKey {
		return true
	}
	return r.URL.Query().Get("key") == s.opts.AuthKey
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.NewString(), r.URL.Query().Get("projectId"), conn)

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	s.logger.Debug("client connected", "client", client.ID, "project", client.ProjectID)

	go client.WritePump()

	s.readPump(r.Context(), client)
}

func (s *Server) readPump(ctx context.Context, client *Client) {
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		client.Close()
		s.logger.Debug("client disconnected", "client", client.ID)
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "client", client.ID, "error", err)
			}
			return
		}

		s.handleMessage(ctx, client, message)
	}
}

func (s *Server) handleMessage(ctx context.Context, client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Warn("invalid message format", "client", client.ID, "error", err)
		return
	}

	if msg.Kind == KindRequest && msg.Request != nil {
		// model calls can take a while; keep reading meanwhile
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleRPCRequest(ctx, client, msg.Request)
		}()
	}
}

func (s *Server) handleRPCRequest(ctx context.Context, client *Client, req *RPCRequest) {
	result, err := s.router.Call(ctx, req.Method, req.Params)

	var errMsg string
	if err != nil {
		errMsg = err.Error()
		s.logger.Debug("rpc failed", "method", req.Method, "error", err)
	}

	if err := client.SendResponse(req.ID, result, errMsg); err != nil {
		s.logger.Warn("failed to send response", "client", client.ID, "method", req.Method, "error", err)
	}
}

// BroadcastEvent implements eventhub.Broadcaster
func (s *Server) BroadcastEvent(projectID, eventType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if client.Watches(projectID) {
			client.SendEvent(eventType, payload)
		}
	}
}
