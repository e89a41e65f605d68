package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Response is an HTTP/1.1 response under construction. The response stream
// is write-once per connection; the serialized bytes are written and the
// connection is closed.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// NewResponse creates a response with the given status and no body.
func NewResponse(status int) *Response {
	return &Response{
		Status:  status,
		Headers: make(map[string]string),
	}
}

// Header sets a response header and returns the response for chaining.
func (r *Response) Header(name, value string) *Response {
	r.Headers[name] = value
	return r
}

// Text creates a text/html response, the shape handlers get when they return
// a plain string.
func Text(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Headers["Content-Type"] = "text/html; charset=utf-8"
	resp.Body = []byte(body)
	return resp
}

// JSON creates an application/json response from any encodable value.
func JSON(status int, v any) *Response {
	resp := NewResponse(status)
	resp.Headers["Content-Type"] = "application/json"
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
		resp.Status = http.StatusInternalServerError
		resp.Body = []byte(`{"error":"internal server error"}`)
		return resp
	}
	resp.Body = body
	return resp
}

// NotFound is the response for unmatched routes and nil handler results.
func NotFound() *Response {
	return JSON(http.StatusNotFound, map[string]string{"error": "not found"})
}

// From converts a handler return value into a response:
// a string becomes a text/html body, a *Response is used verbatim,
// nil becomes 404, and anything else is JSON-encoded.
func From(value any) *Response {
	switch v := value.(type) {
	case nil:
		return NotFound()
	case *Response:
		return v
	case string:
		return Text(http.StatusOK, v)
	default:
		return JSON(http.StatusOK, v)
	}
}

// Bytes serializes the response as an HTTP/1.1 message. Headers are emitted
// in sorted order; Content-Length and Connection: close are always set.
func (r *Response) Bytes() []byte {
	text := http.StatusText(r.Status)
	if text == "" {
		text = "Unknown"
	}

	out := fmt.Appendf(nil, "HTTP/1.1 %d %s\r\n", r.Status, text)

	headers := make(map[string]string, len(r.Headers)+2)
	for name, value := range r.Headers {
		headers[name] = value
	}
	headers["Content-Length"] = strconv.Itoa(len(r.Body))
	headers["Connection"] = "close"

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out = fmt.Appendf(out, "%s: %s\r\n", name, headers[name])
	}
	out = append(out, "\r\n"...)
	out = append(out, r.Body...)
	return out
}
