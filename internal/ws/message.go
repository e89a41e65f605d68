package ws

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// eventNamePattern restricts event names to dotted/underscored identifiers.
var eventNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Message is the application-level payload carried in text and binary
// frames: {"event": string, "data": object} and nothing else.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// ParseMessage validates and decodes an application payload. The payload
// must be a JSON object with exactly the keys "event" and "data", an event
// name matching the allowed pattern, and an object-valued data field.
func ParseMessage(payload []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("message is not a JSON object: %w", err)
	}

	eventRaw, ok := fields["event"]
	if !ok {
		return nil, fmt.Errorf("message missing 'event' field")
	}
	dataRaw, ok := fields["data"]
	if !ok {
		return nil, fmt.Errorf("message missing 'data' field")
	}
	if len(fields) != 2 {
		for key := range fields {
			if key != "event" && key != "data" {
				return nil, fmt.Errorf("message has unexpected field %q", key)
			}
		}
	}

	var event string
	if err := json.Unmarshal(eventRaw, &event); err != nil {
		return nil, fmt.Errorf("'event' must be a string")
	}
	if event == "" || !eventNamePattern.MatchString(event) {
		return nil, fmt.Errorf("invalid event name %q", event)
	}

	var data map[string]any
	if err := json.Unmarshal(dataRaw, &data); err != nil || data == nil {
		return nil, fmt.Errorf("'data' must be a JSON object")
	}

	return &Message{Event: event, Data: data}, nil
}

// EncodeMessage serializes an outbound application payload.
func EncodeMessage(event string, data any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
}

// ErrorPayload builds the in-band error event sent to a misbehaving peer.
func ErrorPayload(message string) []byte {
	payload, err := EncodeMessage("error", map[string]any{
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		// The shape above always marshals.
		return nil
	}
	return payload
}
