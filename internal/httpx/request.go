// Package httpx implements the minimal HTTP/1.1 engine used for plain
// requests on the shared listener: a parser for complete requests read off a
// raw socket, a response builder, and CORS handling.
package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// headerTerminator separates the header section from the body.
var headerTerminator = []byte("\r\n\r\n")

// Request is a parsed HTTP/1.1 request.
type Request struct {
	Method string
	Path   string
	Proto  string

	// Query holds the parsed query string.
	Query url.Values

	// Headers holds the request headers, keyed by canonical MIME form.
	Headers map[string]string

	// Params holds path parameters captured by {name} route placeholders.
	Params map[string]string

	// RawBody is the body exactly as received.
	RawBody []byte

	// Body is the JSON-decoded body when it parses as JSON, otherwise the
	// raw body as a string.
	Body any

	// ClientID identifies the connection the request arrived on.
	ClientID string

	// RemoteAddr is the peer address, possibly rewritten from
	// X-Forwarded-For when the peer is a trusted proxy.
	RemoteAddr string
}

// Complete reports whether buf holds at least one full request: the header
// terminator plus, when a Content-Length header is present, the full body.
func Complete(buf []byte) bool {
	idx := bytes.Index(buf, headerTerminator)
	if idx < 0 {
		return false
	}
	length := contentLength(buf[:idx])
	return len(buf) >= idx+len(headerTerminator)+length
}

func contentLength(head []byte) int {
	for _, line := range bytes.Split(head, []byte("\r\n")) {
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		if strings.EqualFold(string(bytes.TrimSpace(name)), "Content-Length") {
			// Atoi rejects trailing garbage; a value that is not a plain
			// decimal integer means no body.
			n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
			if err != nil || n < 0 {
				return 0
			}
			return n
		}
	}
	return 0
}

// ParseRequest parses a complete HTTP/1.1 request from a raw read buffer.
func ParseRequest(raw []byte) (*Request, error) {
	head, body, found := bytes.Cut(raw, headerTerminator)
	if !found {
		return nil, fmt.Errorf("incomplete request: missing header terminator")
	}

	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("empty request line")
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("malformed request line %q", lines[0])
	}

	req := &Request{
		Method:  parts[0],
		Proto:   parts[2],
		Headers: make(map[string]string, len(lines)-1),
		Params:  make(map[string]string),
		Query:   url.Values{},
	}

	target := parts[1]
	if path, query, ok := strings.Cut(target, "?"); ok {
		req.Path = path
		if values, err := url.ParseQuery(query); err == nil {
			req.Query = values
		}
	} else {
		req.Path = target
	}
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		req.Headers[key] = strings.TrimSpace(value)
	}

	length := contentLength(head)
	if length > len(body) {
		length = len(body)
	}
	req.RawBody = body[:length]
	req.Body = decodeBody(req.RawBody)

	return req, nil
}

// decodeBody returns the JSON form of the body when it parses as JSON,
// otherwise the body as a string.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded
	}
	return string(raw)
}

// Header returns a header value by name (case-insensitive). Empty string if
// the header is absent.
func (r *Request) Header(name string) string {
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Origin returns the Origin header, or empty for same-origin requests.
func (r *Request) Origin() string {
	return r.Header("Origin")
}

// Param returns a captured path parameter.
func (r *Request) Param(name string) string {
	return r.Params[name]
}
