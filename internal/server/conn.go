package server

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sockd/sockd/internal/httpx"
	"github.com/sockd/sockd/internal/ws"
)

const (
	// readBufSize is how much is read from a socket per cycle.
	readBufSize = 8 * 1024

	// maxHeadSize bounds the buffered HTTP head (request or handshake)
	// before the header terminator arrives.
	maxHeadSize = 64 * 1024

	// handshakeTimeout bounds how long a connection may take to deliver
	// its first complete request.
	handshakeTimeout = 30 * time.Second
)

// readLoop drives one connection: sniff the protocol on first data, then
// feed each read into the matching engine until the peer goes away or the
// protocol says stop.
func (s *Server) readLoop(client *Client) {
	defer s.Disconnect(client.ID())

	_ = client.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	buf := make([]byte, readBufSize)
	for {
		n, err := client.conn.Read(buf)
		if err != nil || n == 0 {
			return
		}
		data := buf[:n]

		if client.Kind() == KindUnknown {
			kind := sniff(data)
			if kind == KindUnknown {
				log.Warn().
					Str("client_id", client.ID()).
					Str("remote_addr", client.RemoteAddr()).
					Msg("unrecognized protocol, dropping connection")
				return
			}
			client.setKind(kind)
			log.Debug().
				Str("client_id", client.ID()).
				Str("kind", kind.String()).
				Msg("protocol detected")
		}

		var done bool
		switch client.Kind() {
		case KindHTTP:
			done = s.feedHTTP(client, data)
		case KindWS:
			done = s.feedWS(client, data)
		}
		if done {
			return
		}
	}
}

// feedHTTP accumulates reads until a complete request is buffered, then
// parses it, dispatches it and writes the single response. The connection
// closes after one exchange.
func (s *Server) feedHTTP(client *Client, data []byte) bool {
	client.head = append(client.head, data...)
	if !httpx.Complete(client.head) {
		if len(client.head) > maxHeadSize {
			_ = client.write(httpx.Text(http.StatusRequestEntityTooLarge, "request too large").Bytes())
			return true
		}
		return false
	}

	req, err := httpx.ParseRequest(client.head)
	client.head = nil
	if err != nil {
		log.Warn().Err(err).Str("client_id", client.ID()).Msg("bad http request")
		_ = client.write(httpx.Text(http.StatusBadRequest, "bad request").Bytes())
		return true
	}

	req.ClientID = client.ID()
	req.RemoteAddr = s.resolveRemoteAddr(client, req)
	client.setRemoteAddr(req.RemoteAddr)

	resp := s.engine.Handle(req)
	if err := client.write(resp.Bytes()); err != nil {
		log.Debug().Err(err).Str("client_id", client.ID()).Msg("response write failed")
	}
	return true
}

// feedWS runs the handshake exchange on the first complete request, then
// feeds every read through the frame engine.
func (s *Server) feedWS(client *Client, data []byte) bool {
	if !client.Handshaken() {
		return s.feedHandshake(client, data)
	}
	return s.processFrames(client, data)
}

func (s *Server) feedHandshake(client *Client, data []byte) bool {
	client.head = append(client.head, data...)
	idx := bytes.Index(client.head, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(client.head) > maxHeadSize {
			log.Warn().Str("client_id", client.ID()).Msg("oversized handshake request")
			return true
		}
		return false
	}

	head := client.head[:idx+4]
	leftover := append([]byte(nil), client.head[idx+4:]...)
	client.head = nil

	req, err := httpx.ParseRequest(head)
	if err != nil {
		log.Warn().Err(err).Str("client_id", client.ID()).Msg("bad handshake request")
		_ = client.write(httpx.Text(http.StatusBadRequest, "bad request").Bytes())
		return true
	}
	req.ClientID = client.ID()
	req.RemoteAddr = s.resolveRemoteAddr(client, req)
	client.setRemoteAddr(req.RemoteAddr)

	result := s.handshake.Upgrade(req)
	if err := client.write(result.Response); err != nil {
		return true
	}
	if !result.Accepted {
		log.Warn().
			Str("client_id", client.ID()).
			Str("reason", result.Reason).
			Msg("handshake refused")
		return true
	}

	client.markHandshaken()
	_ = client.conn.SetReadDeadline(time.Time{})

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", client.RemoteAddr()).
		Msg("websocket established")

	// Handlers observe the connect event before any frame dispatch.
	s.router.DispatchConnect(client.ID())

	if len(leftover) > 0 {
		return s.processFrames(client, leftover)
	}
	return false
}

/// processFrames feeds bytes to the session and acts on its output: pong
// replies are written back, complete payloads are validated and dispatched
// in wire order, protocol violations drop the connection.
func (s *Server) processFrames(client *Client, data []byte) bool {
	out, feedErr := client.session.Feed(data)

	for _, reply := range out.Replies {
		if err := client.write(reply); err != nil {
			return true
		}
	}

	for _, payload := range out.Messages {
		msg, err := ws.ParseMessage(payload)
		if err != nil {
			log.Debug().
				Err(err).
				Str("client_id", client.ID()).
				Msg("invalid message payload")
			s.sendError(client, err.Error())
			continue
		}
		if err := s.router.DispatchEvent(client.ID(), msg.Event, msg.Data); err != nil {
			s.sendError(client, "internal server error")
		}
	}

	if feedErr != nil {
		log.Warn().
			Err(feedErr).
			Str("client_id", client.ID()).
			Msg("websocket protocol error, dropping connection")
		if errors.Is(feedErr, ws.ErrMessageTooLarge) {
			s.sendError(client, "message exceeds maximum size")
		}
		return true
	}
	return out.Close
}

// sendError emits the in-band error event; delivery failures are ignored
// because the connection is usually being torn down.
func (s *Server) sendError(client *Client, message string) {
	payload := ws.ErrorPayload(message)
	if payload == nil {
		return
	}
	_ = client.write(ws.EncodeFrame(ws.OpText, payload))
}

// resolveRemoteAddr rewrites the peer address from X-Forwarded-For when the
// direct peer is a trusted proxy.
func (s *Server) resolveRemoteAddr(client *Client, req *httpx.Request) string {
	direct := client.conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(direct)
	if err != nil {
		host = direct
	}
	if _, trusted := s.trustedProxies[host]; !trusted {
		return direct
	}

	forwarded := req.Header("X-Forwarded-For")
	if forwarded == "" {
		return direct
	}
	first, _, _ := strings.Cut(forwarded, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return direct
}
