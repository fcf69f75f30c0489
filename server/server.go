package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the metrics server configuration.
type Config struct {
	// ListenAddr is the host:port the server binds to.
	// Default: 127.0.0.1:9099
	ListenAddr string

	// Gatherer provides the exported metrics.
	Gatherer prometheus.Gatherer

	// Status returns a snapshot served as JSON on /status. Optional.
	Status func() interface{}

	// ShutdownTimeout bounds the graceful shutdown.
	// Default: 5 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default configuration for gatherer.
func DefaultConfig(gatherer prometheus.Gatherer) *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:9099",
		Gatherer:        gatherer,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Gatherer == nil {
		return fmt.Errorf("gatherer is required")
	}

	return nil
}

// Server exposes the client's metrics and status over HTTP.
type Server struct {
	cfg *Config

	httpServer *http.Server
	listener   net.Listener

	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New creates a new server.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg: cfg,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		cfg.Gatherer, promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/status", s.serveStatus)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w",
			s.cfg.ListenAddr, err)
	}
	s.listener = listener
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()

	log.Infof("Metrics server listening on %v", listener.Addr())

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()

	return err
}

// serveStatus writes the status snapshot as JSON.
func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cfg.Status()); err != nil {
		log.Warnf("Unable to encode status: %v", err)
	}
}
