package server

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yachat/pkg/protocol"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// Server is the relay core: it owns the connection registry, the session
// store and a handle to the persistent store, and runs one goroutine per
// connection.
type Server struct {
	store      MessageStore
	registry   *ConnRegistry
	sessions   *SessionStore
	config     ServerConfig
	metrics    *Metrics
	listener   net.Listener
	httpServer *http.Server
	shutdown   chan struct{}
	wg         sync.WaitGroup
}

// ServerConfig holds server configuration
type ServerConfig struct {
	TCPPort          int
	HTTPAddr         string // metrics + websocket endpoint, empty disables
	MaxMessageLength int
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:          7667,
		HTTPAddr:         "",
		MaxMessageLength: 4096,
	}
}

// NewServer creates a server around an already-open store. The registry and
// session store are constructed here and shared with every connection
// goroutine.
func NewServer(st MessageStore, config ServerConfig) *Server {
	return &Server{
		store:    st,
		registry: NewConnRegistry(),
		sessions: NewSessionStore(),
		config:   config,
		shutdown: make(chan struct{}),
	}
}

// EnableDebugLogging turns on per-frame debug output.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}

// EnableMetrics registers Prometheus metrics for the server.
func (s *Server) EnableMetrics() {
	s.metrics = NewMetrics()
	s.sessions.SetMetrics(s.metrics)
}

// Start starts the TCP listener and, if configured, the HTTP endpoint for
// metrics and WebSocket connections.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	log.Printf("TCP server listening on %s", addr)

	if s.config.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/ws", s.HandleWebSocket)

		s.httpServer = &http.Server{Addr: s.config.HTTPAddr, Handler: mux}
		go func() {
			log.Printf("HTTP server listening on %s", s.config.HTTPAddr)
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errorLog.Printf("HTTP server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the address the TCP listener is bound to, or nil before
// Start. Useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	close(s.shutdown)

	// The accept and HTTP goroutines still read these fields, so close
	// without clearing them.
	if s.listener != nil {
		s.listener.Close()
	}

	if s.httpServer != nil {
		s.httpServer.Close()
	}

	// Closing the connections unblocks their read loops
	s.registry.CloseAll()

	// Wait for connection goroutines to finish
	s.wg.Wait()

	return s.store.Close()
}

// acceptLoop accepts incoming TCP connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				errorLog.Printf("Accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection runs the frame loop for a single client connection. It
// is transport-agnostic: TCP connections arrive here directly, WebSocket
// connections through the net.Conn adapter.
func (s *Server) handleConnection(conn net.Conn) {
	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	connID, sc := s.registry.Register(conn)
	defer func() {
		// Teardown order: expire the session first so notifications stop
		// resolving to this connection, then drop the registry entry.
		s.sessions.ForceRemove(connID)
		s.registry.Unregister(connID)

		if s.metrics != nil {
			s.metrics.RecordActiveConnections(s.registry.Count())
		}
		debugLog.Printf("Connection %d from %s closed", connID, conn.RemoteAddr())
	}()

	if s.metrics != nil {
		s.metrics.RecordActiveConnections(s.registry.Count())
		s.metrics.RecordConnectionOpened()
	}
	debugLog.Printf("New connection %d from %s", connID, conn.RemoteAddr())

	scanner := protocol.NewFrameScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		debugLog.Printf("Connection %d recv %d bytes", connID, len(line))

		if err := s.handleFrame(connID, sc, line); err != nil {
			// The response write failed; the connection is going away and
			// the deferred teardown handles the rest.
			debugLog.Printf("Connection %d write error: %v", connID, err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		debugLog.Printf("Connection %d read error: %v", connID, err)
	}
}

// serveConn registers an externally accepted connection (e.g. WebSocket)
// with the server's lifecycle tracking and runs its frame loop.
func (s *Server) serveConn(conn net.Conn) {
	s.wg.Add(1)
	defer s.wg.Done()

	select {
	case <-s.shutdown:
		conn.Close()
		return
	default:
	}

	s.handleConnection(conn)
}
