// Package queue implements the file-backed cross-process message queue: a
// newline-delimited JSON mailbox that external processes append to and the
// server drains on a short poll cycle.
package queue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// Record types.
const (
	TypeEmit      = "emit"
	TypeBroadcast = "broadcast"
)

// Record is one queued message: a direct emit to a single client or a
// broadcast over an optional namespace/room filter.
type Record struct {
	Type      string         `json:"type"`
	ClientID  string         `json:"clientId,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Namespace string         `json:"namespace,omitempty"`
	Room      string         `json:"room,omitempty"`
}

// rawRecord tolerates the loose typing producers use: clientId may be a
// string or a number on the wire.
type rawRecord struct {
	Type      string          `json:"type"`
	ClientID  json.RawMessage `json:"clientId"`
	Event     string          `json:"event"`
	Data      map[string]any  `json:"data"`
	Namespace string          `json:"namespace"`
	Room      string          `json:"room"`
}

// Sink receives drained records. The server's multiplexer implements it.
type Sink interface {
	Send(clientID, event string, data map[string]any) error
	Broadcast(event string, data map[string]any, namespace, room string)
}

// Drain reads and dispatches every record in the queue file, then truncates
// it, all under an exclusive advisory lock. A missing or empty file is a
// no-op. Malformed records are logged and skipped; one bad line never stops
// the rest.
func Drain(path string, sink Sink) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	// The advisory lock is taken on the queue file itself, so foreign
	// producers and the drain loop contend on one well-known path.
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("queue lock: %w", err)
	}
	if !locked {
		// Another process holds the lock; skip this cycle.
		return nil
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("queue read: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("queue truncate: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record, err := parseRecord(line)
		if err != nil {
			log.Warn().Err(err).Str("line", preview(line)).Msg("skipping malformed queue record")
			continue
		}
		dispatch(record, sink)
	}
	return nil
}

func dispatch(record *Record, sink Sink) {
	switch record.Type {
	case TypeEmit:
		if err := sink.Send(record.ClientID, record.Event, record.Data); err != nil {
			log.Debug().
				Err(err).
				Str("client_id", record.ClientID).
				Str("event", record.Event).
				Msg("queue emit not delivered")
		}
	case TypeBroadcast:
		sink.Broadcast(record.Event, record.Data, record.Namespace, record.Room)
	}
}

// parseRecord decodes and validates one queue line.
func parseRecord(line []byte) (*Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	record := &Record{
		Type:      raw.Type,
		Event:     raw.Event,
		Data:      raw.Data,
		Namespace: raw.Namespace,
		Room:      raw.Room,
	}

	if record.Event == "" {
		return nil, fmt.Errorf("record missing 'event'")
	}
	if record.Data == nil {
		return nil, fmt.Errorf("record missing 'data' object")
	}

	switch raw.Type {
	case TypeEmit:
		clientID, err := decodeClientID(raw.ClientID)
		if err != nil {
			return nil, err
		}
		record.ClientID = clientID
	case TypeBroadcast:
		// namespace and room filters are optional
	default:
		return nil, fmt.Errorf("unknown record type %q", raw.Type)
	}
	return record, nil
}

// decodeClientID accepts a JSON string or number and returns its string
// form.
func decodeClientID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("emit record missing 'clientId'")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("'clientId' must be a string or number")
}

// Append writes one record to the queue file under the advisory lock. It is
// the producer half of the IPC contract, usable from other Go processes.
func Append(path string, record Record) error {
	if record.Type != TypeEmit && record.Type != TypeBroadcast {
		return fmt.Errorf("unknown record type %q", record.Type)
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("queue lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("queue open: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("queue write: %w", err)
	}
	return nil
}

func preview(line []byte) string {
	const max = 120
	if len(line) > max {
		return string(line[:max]) + "... (" + strconv.Itoa(len(line)) + " bytes)"
	}
	return string(line)
}
