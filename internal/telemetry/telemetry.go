// Package telemetry pushes VM snapshots to a single connected observer over
// a websocket, adapted from the reference stack's internal/network server.
// Unlike that server, a telemetry connection never has its messages read:
// the wire protocol has no inbound message type, so ReadMessage is never
// called on the accepted connection, not even to detect disconnects — a
// dead client is discovered lazily, the next time Publish's WriteMessage
// fails. This is an observation channel, not a debugger or control plane.
package telemetry

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"ribbit/internal/vm"
)

// Server accepts a single websocket client at a time and broadcasts
// snapshots to whoever is currently connected. Publish is a no-op with no
// client attached; it never blocks waiting for one.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	log      *log.Logger

	mu     sync.Mutex
	client *websocket.Conn
	srv    *http.Server
}

// New builds a telemetry server bound to addr. It does not start listening
// until Start is called.
func New(addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr: addr,
		log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start begins listening in the background. It returns once the listener is
// bound so callers can log the chosen address immediately.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Printf("telemetry: server exited: %v", err)
		}
	}()
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("telemetry: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
	}
	s.client = conn
	s.mu.Unlock()
}

// Publish implements vm.Sink, broadcasting the snapshot to whichever client
// is currently connected, or discarding it if none is.
func (s *Server) Publish(snapshot vm.Snapshot) {
	s.mu.Lock()
	conn := s.client
	s.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Printf("telemetry: marshal snapshot: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != conn {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Printf("telemetry: write snapshot: %v", err)
		conn.Close()
		s.client = nil
	}
}

// Close shuts down the listener and drops any connected client.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}
