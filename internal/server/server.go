package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ptz-console/internal/metrics"
	"ptz-console/internal/preview"
	"ptz-console/internal/protocol"
	"ptz-console/internal/session"
)

// DefaultStatusInterval is how often each client is checked for a changed
// status or new log lines.
const DefaultStatusInterval = 200 * time.Millisecond

// Config for the server
type Config struct {
	ListenAddr string
	Console    session.Console

	// Preview enables WebRTC video for each client when non-nil.
	Preview    *preview.Hub
	ICEServers []string

	StatusInterval time.Duration
	Gatherer       prometheus.Gatherer
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// Server is the web console: a static page plus one websocket per browser.
type Server struct {
	cfg       Config
	log       zerolog.Logger
	clients   map[*Client]bool
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	staticFS  fs.FS
	httpSrv   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance. staticFS must hold the page under web/.
func New(cfg Config, staticFS fs.FS) (*Server, error) {
	if cfg.Console == nil {
		return nil, errors.New("server: console is required")
	}
	webFS, err := fs.Sub(staticFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded web files: %w", err)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "server").Logger(),
		clients:  make(map[*Client]bool),
		staticFS: webFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The console is meant for the local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
	return s, nil
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.statusPayload()); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	})
	r.Get("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}).ServeHTTP)
	r.Handle("/*", http.FileServer(http.FS(s.staticFS)))
	return r
}

// Start serves until Stop. It returns http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("server starting")
	return s.httpSrv.ListenAndServe()
}

// Stop disconnects every client and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) statusPayload() protocol.StatusPayload {
	c := s.cfg.Console
	return protocol.StatusPayload{
		Snapshot: c.Snapshot(),
		Message:  c.StatusMessage(),
		Target:   c.Target(),
		Speeds:   c.Speeds(),
		Preview:  s.cfg.Preview != nil,
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	client := newClient(s, conn)

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	s.cfg.Metrics.AddWebClients(1)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	go client.writePump()
	go client.readPump()
	go client.statusPump()

	if s.cfg.Preview != nil {
		if err := client.initWebRTC(); err != nil {
			s.log.Warn().Err(err).Msg("webrtc init")
			client.sendError(protocol.ErrPreview, err.Error())
		}
	}
}

func (s *Server) removeClient(c *Client) {
	s.clientsMu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.clientsMu.Unlock()
	if ok {
		s.cfg.Metrics.AddWebClients(-1)
	}
}
