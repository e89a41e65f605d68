package ws

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrMessageTooLarge is returned when a logical message, or the undecoded
// residual in the read buffer, exceeds the configured max message size.
// The server sends an in-band error event and drops the connection.
var ErrMessageTooLarge = errors.New("message exceeds configured max message size")

// Session is the per-client WebSocket state machine after the handshake:
// it buffers partial frames between reads, reassembles fragmented messages,
// and applies the per-frame policy.
type Session struct {
	clientID       string
	maxMessageSize int

	// buf holds undecoded bytes carried over between reads.
	buf []byte

	// Fragmented message reassembly. fragActive is set while an unfinished
	// text/binary message is open; control frames may interleave.
	fragActive bool
	fragOpcode Opcode
	frag       []byte
}

// NewSession creates a session for one client connection.
func NewSession(clientID string, maxMessageSize int) *Session {
	return &Session{
		clientID:       clientID,
		maxMessageSize: maxMessageSize,
	}
}

// Output is what one read cycle produced: complete message payloads to
// dispatch in wire order, encoded reply frames to write (pong answers), and
// whether the peer asked to close.
type Output struct {
	Messages [][]byte
	Replies  [][]byte
	Close    bool
}

// Feed consumes one read's worth of bytes. Any returned error is a protocol
// violation; the caller drops the connection.
func (s *Session) Feed(data []byte) (Output, error) {
	var out Output

	s.buf = append(s.buf, data...)
	frames, rest, decodeErr := DecodeFrames(s.buf)
	s.buf = rest

	// Frames decoded before a malformed one still dispatch in wire order;
	// only then does the violation drop the connection.
	for _, frame := range frames {
		if err := s.handleFrame(frame, &out); err != nil {
			return out, err
		}
		if out.Close {
			s.buf = nil
			return out, nil
		}
	}

	if decodeErr != nil {
		return out, fmt.Errorf("frame decode: %w", decodeErr)
	}

	// The residual is judged by the payload length its header declares, not
	// by the buffer size, so header bytes never count against the limit.
	if declared, ok := declaredLength(s.buf); ok && declared > int64(s.maxMessageSize) {
		s.buf = nil
		return out, ErrMessageTooLarge
	}
	return out, nil
}

func (s *Session) handleFrame(frame Frame, out *Output) error {
	switch frame.Opcode {
	case OpText, OpBinary:
		if s.fragActive {
			return fmt.Errorf("data frame received while a fragmented message is open")
		}
		if len(frame.Payload) > s.maxMessageSize {
			return ErrMessageTooLarge
		}
		if !frame.Fin {
			s.fragActive = true
			s.fragOpcode = frame.Opcode
			s.frag = append([]byte(nil), frame.Payload...)
			return nil
		}
		if len(frame.Payload) > 0 {
			out.Messages = append(out.Messages, frame.Payload)
		}

	case OpContinuation:
		if !s.fragActive {
			return fmt.Errorf("continuation frame without an open fragmented message")
		}
		if len(s.frag)+len(frame.Payload) > s.maxMessageSize {
			s.resetFragment()
			return ErrMessageTooLarge
		}
		s.frag = append(s.frag, frame.Payload...)
		if frame.Fin {
			if len(s.frag) > 0 {
				out.Messages = append(out.Messages, s.frag)
			}
			s.resetFragment()
		}

	case OpClose:
		log.Debug().Str("client_id", s.clientID).Msg("close frame received")
		out.Close = true

	case OpPing:
		out.Replies = append(out.Replies, EncodeFrame(OpPong, frame.Payload))

	case OpPong:
		log.Debug().Str("client_id", s.clientID).Msg("pong received")
	}
	return nil
}

func (s *Session) resetFragment() {
	s.fragActive = false
	s.frag = nil
}

// Buffered returns how many undecoded bytes the session is holding.
func (s *Session) Buffered() int {
	return len(s.buf)
}
