// Package server implements the connection multiplexer: one TCP listener
// whose connections are sniffed as plain HTTP or WebSocket and driven
// through the matching protocol engine, plus the broadcast-capable client
// registry and the queue poll cycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sockd/sockd/internal/config"
	"github.com/sockd/sockd/internal/httpx"
	"github.com/sockd/sockd/internal/queue"
	"github.com/sockd/sockd/internal/registry"
	"github.com/sockd/sockd/internal/router"
	"github.com/sockd/sockd/internal/ws"
)

// queuePollInterval is how often the queue file is drained when no write
// notification arrives first.
const queuePollInterval = 200 * time.Millisecond

// queueErrorBackoff is the pause after a failed drain cycle.
const queueErrorBackoff = 100 * time.Millisecond

// ErrClientNotFound is returned by Send for unknown client ids.
var ErrClientNotFound = errors.New("client not found")

// Server owns the listener, the live client set and the protocol engines.
type Server struct {
	cfg      *config.Config
	router   *router.Router
	registry *registry.Registry

	handshake *ws.Handshake
	engine    *httpx.Engine

	mu      sync.RWMutex
	clients map[string]*Client

	listener  net.Listener
	startTime time.Time

	trustedProxies map[string]struct{}
	heartbeatSeq   int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server from configuration and a populated router.
func New(cfg *config.Config, rt *router.Router) *Server {
	s := &Server{
		cfg:            cfg,
		router:         rt,
		registry:       registry.New(),
		handshake:      ws.NewHandshake(cfg),
		clients:        make(map[string]*Client),
		trustedProxies: make(map[string]struct{}, len(cfg.TrustedProxies)),
	}
	for _, proxy := range cfg.TrustedProxies {
		s.trustedProxies[proxy] = struct{}{}
	}
	s.engine = httpx.NewEngine(cfg, rt, s)
	return s
}

// Registry exposes the namespace/room indices to handler authors.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Router returns the server's router.
func (s *Server) Router() *router.Router {
	return s.router
}

// Addr returns the bound listener address, nil before Run.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Client returns a live client by id, nil if unknown.
func (s *Server) Client(clientID string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[clientID]
}

// Run binds the listener and serves until the listener is closed. Bind
// errors are fatal and surface to the caller.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	log.Info().
		Str("addr", listener.Addr().String()).
		Str("queue_file", s.cfg.QueueFile).
		Msg("server listening")

	s.wg.Add(1)
	go s.queueLoop()

	if s.cfg.HeartbeatInterval > 0 {
		s.wg.Add(1)
		go s.heartbeatLoop()
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.addConnection(conn)
	}
}

// Stop closes the listener and disconnects every client in an orderly way:
// the disconnect special event fires for each established WebSocket before
// its socket closes.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("server stopping")

	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.Disconnect(id)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addConnection registers a freshly accepted connection and starts its read
// cycle. New clients join the default namespace with kind unknown.
func (s *Server) addConnection(conn net.Conn) {
	client := newClient(conn, s.cfg.MaxMessageSize)

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.mu.Unlock()

	s.registry.JoinNamespace(client.ID(), registry.DefaultNamespace)

	log.Debug().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(client)
	}()
}

// Disconnect closes a client's socket and removes it from every index. For
// an established WebSocket the disconnect special event fires first, at
// most once.
func (s *Server) Disconnect(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()
	if !ok {
		return
	}

	if client.Kind() == KindWS && client.Handshaken() && client.markDisconnected() {
		s.router.DispatchDisconnect(clientID)
	}

	s.registry.LeaveNamespace(clientID)
	client.close()

	log.Debug().
		Str("client_id", clientID).
		Str("kind", client.Kind().String()).
		Msg("client disconnected")
}

// Send serializes an event to a text frame and writes it to one client.
// A no-op for clients that are not established WebSockets; a write failure
// disconnects the client.
func (s *Server) Send(clientID, event string, data map[string]any) error {
	client := s.Client(clientID)
	if client == nil {
		return ErrClientNotFound
	}
	if client.Kind() != KindWS || !client.Handshaken() {
		return nil
	}

	payload, err := ws.EncodeMessage(event, data)
	if err != nil {
		return fmt.Errorf("encode event %q: %w", event, err)
	}
	if err := client.write(ws.EncodeFrame(ws.OpText, payload)); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("write failed, disconnecting")
		s.Disconnect(clientID)
		return err
	}
	return nil
}

// Broadcast fans an event out to every established WebSocket matching the
// filters: all clients, one namespace, or one room within a namespace.
// Clients whose write fails are collected and disconnected after the loop.
func (s *Server) Broadcast(event string, data map[string]any, namespace, room string) {
	payload, err := ws.EncodeMessage(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("broadcast encode failed")
		return
	}
	frame := ws.EncodeFrame(ws.OpText, payload)

	var failed []string
	for _, clientID := range s.recipients(namespace, room) {
		client := s.Client(clientID)
		if client == nil || client.Kind() != KindWS || !client.Handshaken() {
			continue
		}
		if err := client.write(frame); err != nil {
			failed = append(failed, clientID)
		}
	}
	for _, clientID := range failed {
		log.Warn().Str("client_id", clientID).Msg("broadcast write failed, disconnecting")
		s.Disconnect(clientID)
	}
}

// recipients computes the target id set for a broadcast.
func (s *Server) recipients(namespace, room string) []string {
	if room != "" {
		if namespace == "" {
			namespace = registry.DefaultNamespace
		}
		return s.registry.ClientsInRoom(namespace, room)
	}
	if namespace != "" {
		return s.registry.ClientsInNamespace(namespace)
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// queueLoop drains the IPC queue file every poll interval, or sooner when
// the file watcher reports a write.
func (s *Server) queueLoop() {
	defer s.wg.Done()

	watcher := queue.NewWatcher(s.cfg.QueueFile)
	if err := watcher.Start(s.ctx); err != nil {
		log.Warn().Err(err).Msg("queue watcher unavailable, polling only")
	} else {
		defer watcher.Stop()
	}

	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-watcher.Events():
		}

		if err := queue.Drain(s.cfg.QueueFile, s); err != nil {
			log.Warn().Err(err).Msg("queue drain failed")
			time.Sleep(queueErrorBackoff)
		}
	}
}

// heartbeatLoop broadcasts a periodic server.heartbeat event.
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.cfg.HeartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			seq := atomic.AddInt64(&s.heartbeatSeq, 1)
			s.Broadcast("server.heartbeat", map[string]any{
				"seq":            seq,
				"clients":        s.ClientCount(),
				"uptime_seconds": int64(s.Uptime().Seconds()),
			}, "", "")
		}
	}
}
