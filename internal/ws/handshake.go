package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sockd/sockd/internal/config"
	"github.com/sockd/sockd/internal/httpx"
	"github.com/sockd/sockd/internal/security"
)

// acceptGUID is the fixed GUID from RFC 6455 section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Handshake validates upgrade requests against the configured origin
// allow-list and auth key, and builds the switching-protocols response.
type Handshake struct {
	origins *security.OriginChecker
	authKey string
}

// NewHandshake creates a handshake validator from configuration.
func NewHandshake(cfg *config.Config) *Handshake {
	return &Handshake{
		origins: security.NewOriginChecker(cfg.CORS.AllowedOrigins),
		authKey: cfg.AuthKey,
	}
}

// Result is the structured outcome of an upgrade attempt. On refusal,
// Response holds a status-coded HTTP response to write before closing.
type Result struct {
	Accepted bool
	Reason   string
	Response []byte
}

func refuse(status int, reason string) Result {
	return Result{
		Reason:   reason,
		Response: httpx.Text(status, reason).Bytes(),
	}
}

// Upgrade performs the handshake exchange for a parsed upgrade request.
func (h *Handshake) Upgrade(req *httpx.Request) Result {
	origin := req.Origin()
	if !h.origins.Allowed(origin) {
		return refuse(http.StatusForbidden, "origin not allowed")
	}

	if h.authKey != "" && req.Query.Get("key") != h.authKey {
		return refuse(http.StatusUnauthorized, "missing or invalid auth key")
	}

	if !strings.EqualFold(req.Header("Upgrade"), "websocket") {
		return refuse(http.StatusBadRequest, "missing or invalid Upgrade header")
	}
	if !connectionRequestsUpgrade(req.Header("Connection")) {
		return refuse(http.StatusBadRequest, "missing or invalid Connection header")
	}

	key := req.Header("Sec-WebSocket-Key")
	if key == "" {
		return refuse(http.StatusBadRequest, "missing Sec-WebSocket-Key header")
	}

	if req.Header("Sec-WebSocket-Version") != "13" {
		return refuse(http.StatusUpgradeRequired, "unsupported websocket version")
	}

	response := fmt.Appendf(nil, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n", AcceptKey(key))
	if origin != "" {
		response = fmt.Appendf(response, "Access-Control-Allow-Origin: %s\r\n", origin)
	}
	response = append(response, "\r\n"...)

	return Result{Accepted: true, Response: response}
}

// connectionRequestsUpgrade scans the comma-separated Connection header for
// the Upgrade token.
func connectionRequestsUpgrade(header string) bool {
	for _, token := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
