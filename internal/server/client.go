package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sockd/sockd/internal/ws"
)

// writeWait bounds how long a single client write may block.
const writeWait = 10 * time.Second

// Kind is the protocol a connection was sniffed as.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP
	KindWS
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWS:
		return "ws"
	default:
		return "unknown"
	}
}

// Client is one accepted connection. Its kind transitions from unknown to
// http or ws exactly once, on the first non-empty read.
type Client struct {
	id   string
	conn net.Conn

	// session carries the WebSocket state machine once the kind is ws.
	session *ws.Session

	// head accumulates the initial HTTP-shaped bytes (plain request or
	// upgrade request) until the header terminator arrives.
	head []byte

	mu           sync.Mutex
	kind         Kind
	remoteAddr   string
	data         map[string]any
	handshaken   bool
	closed       bool
	disconnected bool

	// writeMu serializes writes from handlers, broadcasts and the queue.
	writeMu sync.Mutex
}

func newClient(conn net.Conn, maxMessageSize int) *Client {
	id := "client-" + uuid.New().String()
	return &Client{
		id:         id,
		conn:       conn,
		session:    ws.NewSession(id, maxMessageSize),
		kind:       KindUnknown,
		remoteAddr: conn.RemoteAddr().String(),
		data:       make(map[string]any),
	}
}

// ID returns the stable client id.
func (c *Client) ID() string {
	return c.id
}

// Kind returns the sniffed protocol kind.
func (c *Client) Kind() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

func (c *Client) setKind(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind == KindUnknown {
		c.kind = kind
	}
}

// RemoteAddr returns the peer address, possibly rewritten from
// X-Forwarded-For when the peer is a trusted proxy.
func (c *Client) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

func (c *Client) setRemoteAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAddr = addr
}

// Set stores a value in the client's scratch map.
func (c *Client) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Get reads a value from the client's scratch map.
func (c *Client) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[key]
	return value, ok
}

// Handshaken reports whether the WebSocket handshake has completed.
func (c *Client) Handshaken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshaken
}

func (c *Client) markHandshaken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshaken = true
}

// markDisconnected flips the disconnect latch. Returns true exactly once.
func (c *Client) markDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return false
	}
	c.disconnected = true
	return true
}

// write sends raw bytes to the peer under the write lock with a deadline.
func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := c.conn.Write(data)
	return err
}

// close closes the socket. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}
