package server

import (
	"bytes"
)

// httpMethodPrefixes are the request-line starts that identify HTTP-shaped
// traffic on the shared listener.
var httpMethodPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("DELETE "),
	[]byte("OPTIONS "),
	[]byte("PATCH "),
	[]byte("HEAD "),
}

// upgradeHeader is matched case-sensitively, as browsers and well-behaved
// clients send it.
var upgradeHeader = []byte("Upgrade: websocket")

// sniff classifies the first non-empty read of a connection. HTTP-shaped
// data carrying an Upgrade: websocket header is a WebSocket handshake;
// other HTTP-shaped data is a plain request; anything else is unknown and
// the connection is dropped.
func sniff(data []byte) Kind {
	for _, prefix := range httpMethodPrefixes {
		if bytes.HasPrefix(data, prefix) {
			if bytes.Contains(data, upgradeHeader) {
				return KindWS
			}
			return KindHTTP
		}
	}
	return KindUnknown
}
