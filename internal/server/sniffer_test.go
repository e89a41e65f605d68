package server

import "testing"

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Kind
	}{
		{"plain get", "GET /health HTTP/1.1\r\nHost: x\r\n\r\n", KindHTTP},
		{"post with body", "POST /emit HTTP/1.1\r\nContent-Length: 2\r\n\r\n{}", KindHTTP},
		{"options preflight", "OPTIONS /x HTTP/1.1\r\nOrigin: https://a\r\n\r\n", KindHTTP},
		{"upgrade request", "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n", KindWS},
		{"upgrade header case-sensitive", "GET / HTTP/1.1\r\nupgrade: websocket\r\n\r\n", KindHTTP},
		{"tls client hello", "\x16\x03\x01\x02\x00", KindUnknown},
		{"garbage", "hello there", KindUnknown},
		{"lowercase method", "get / HTTP/1.1\r\n\r\n", KindUnknown},
		{"method without space", "GETX/ HTTP/1.1\r\n\r\n", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniff([]byte(tt.data)); got != tt.want {
				t.Errorf("sniff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindHTTP.String() != "http" || KindWS.String() != "ws" || KindUnknown.String() != "unknown" {
		t.Error("kind names changed")
	}
}
