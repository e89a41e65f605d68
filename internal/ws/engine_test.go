package ws

import (
	"bytes"
	"errors"
	"testing"
)

// fragment builds a masked frame with explicit fin/opcode for fragmentation
// tests.
func fragment(opcode Opcode, fin bool, payload []byte) []byte {
	frame := maskFrame(opcode, payload)
	if !fin {
		frame[0] &^= 0x80
	}
	return frame
}

func TestSessionDispatchOrder(t *testing.T) {
	s := NewSession("c1", 1024)

	var buf []byte
	buf = append(buf, maskFrame(OpText, []byte("first"))...)
	buf = append(buf, maskFrame(OpText, []byte("second"))...)
	buf = append(buf, maskFrame(OpText, []byte("third"))...)

	out, err := s.Feed(buf)
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out.Messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if string(out.Messages[i]) != want {
			t.Errorf("message %d = %q, want %q", i, out.Messages[i], want)
		}
	}
}

func TestSessionSplitAcrossReads(t *testing.T) {
	s := NewSession("c1", 1024)
	frame := maskFrame(OpText, []byte("reassembled"))
	cut := len(frame) / 2

	out, err := s.Feed(frame[:cut])
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(out.Messages) != 0 {
		t.Fatalf("incomplete frame produced a message")
	}
	if s.Buffered() == 0 {
		t.Error("expected residual bytes after partial frame")
	}

	out, err = s.Feed(frame[cut:])
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(out.Messages) != 1 || string(out.Messages[0]) != "reassembled" {
		t.Fatalf("messages = %q", out.Messages)
	}
	if s.Buffered() != 0 {
		t.Errorf("expected empty buffer, %d bytes left", s.Buffered())
	}
}

func TestSessionEmptyPayloadNotDispatched(t *testing.T) {
	s := NewSession("c1", 1024)
	out, err := s.Feed(maskFrame(OpText, nil))
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(out.Messages) != 0 {
		t.Errorf("empty payload should not dispatch, got %d messages", len(out.Messages))
	}
}

func TestSessionPingReply(t *testing.T) {
	s := NewSession("c1", 1024)
	out, err := s.Feed(maskFrame(OpPing, []byte("tick")))
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(out.Replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(out.Replies))
	}
	frames, _, err := DecodeFrames(out.Replies[0])
	if err != nil || len(frames) != 1 {
		t.Fatalf("reply did not decode: %v", err)
	}
	if frames[0].Opcode != OpPong {
		t.Errorf("reply opcode = %d, want pong", frames[0].Opcode)
	}
	if string(frames[0].Payload) != "tick" {
		t.Errorf("pong payload = %q, want the ping payload", frames[0].Payload)
	}
}

func TestSessionClose(t *testing.T) {
	s := NewSession("c1", 1024)

	var buf []byte
	buf = append(buf, maskFrame(OpText, []byte("before"))...)
	buf = append(buf, maskFrame(OpClose, nil)...)
	buf = append(buf, maskFrame(OpText, []byte("after"))...)

	out, err := s.Feed(buf)
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if !out.Close {
		t.Fatal("expected close signal")
	}
	if len(out.Messages) != 1 || string(out.Messages[0]) != "before" {
		t.Errorf("messages before close = %q", out.Messages)
	}
	if s.Buffered() != 0 {
		t.Errorf("buffer not cleared on close: %d bytes", s.Buffered())
	}
}

func TestSessionFragmentReassembly(t *testing.T) {
	s := NewSession("c1", 1024)

	var buf []byte
	buf = append(buf, fragment(OpText, false, []byte("hel"))...)
	// Control frames may interleave a fragmented message.
	buf = append(buf, maskFrame(OpPing, nil)...)
	buf = append(buf, fragment(OpContinuation, false, []byte("lo "))...)
	buf = append(buf, fragment(OpContinuation, true, []byte("world"))...)

	out, err := s.Feed(buf)
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(out.Messages) != 1 || string(out.Messages[0]) != "hello world" {
		t.Fatalf("messages = %q", out.Messages)
	}
	if len(out.Replies) != 1 {
		t.Errorf("interleaved ping lost: %d replies", len(out.Replies))
	}
}

func TestSessionContinuationWithoutStart(t *testing.T) {
	s := NewSession("c1", 1024)
	if _, err := s.Feed(fragment(OpContinuation, true, []byte("stray"))); err == nil {
		t.Fatal("expected error for stray continuation")
	}
}

func TestSessionDataFrameDuringFragment(t *testing.T) {
	s := NewSession("c1", 1024)
	if _, err := s.Feed(fragment(OpText, false, []byte("open"))); err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	if _, err := s.Feed(maskFrame(OpText, []byte("interloper"))); err == nil {
		t.Fatal("expected error for data frame during open fragment")
	}
}

func TestSessionMaxMessageSizeBoundary(t *testing.T) {
	const limit = 64

	// Exactly at the limit is accepted.
	s := NewSession("c1", limit)
	out, err := s.Feed(maskFrame(OpText, bytes.Repeat([]byte{'a'}, limit)))
	if err != nil {
		t.Fatalf("payload at limit rejected: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}

	// One byte over is rejected.
	s = NewSession("c2", limit)
	_, err = s.Feed(maskFrame(OpText, bytes.Repeat([]byte{'a'}, limit+1)))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestSessionFragmentedMessageOverLimit(t *testing.T) {
	const limit = 16
	s := NewSession("c1", limit)

	if _, err := s.Feed(fragment(OpText, false, bytes.Repeat([]byte{'a'}, 10))); err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	_, err := s.Feed(fragment(OpContinuation, true, bytes.Repeat([]byte{'a'}, 10)))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestSessionResidualOverLimit(t *testing.T) {
	const limit = 32
	s := NewSession("c1", limit)

	// A partial frame whose header already declares a payload beyond the
	// limit is rejected without waiting for the payload to arrive.
	big := maskFrame(OpText, bytes.Repeat([]byte{'a'}, 1024))
	_, err := s.Feed(big[:limit+8])
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge for oversized residual, got %v", err)
	}
}

func TestSessionLimitPayloadSplitAcrossReads(t *testing.T) {
	const limit = 64
	s := NewSession("c1", limit)

	// A frame carrying exactly the limit, split so the first read leaves
	// more than limit raw bytes (header included) buffered. Header bytes
	// must not count against the message size.
	frame := maskFrame(OpText, bytes.Repeat([]byte{'a'}, limit))
	cut := len(frame) - 5

	out, err := s.Feed(frame[:cut])
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(out.Messages) != 0 {
		t.Fatal("incomplete frame produced a message")
	}

	out, err = s.Feed(frame[cut:])
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(out.Messages) != 1 || len(out.Messages[0]) != limit {
		t.Fatalf("expected one message of %d bytes, got %q", limit, out.Messages)
	}
}

func TestSessionDispatchesFramesBeforeDecodeError(t *testing.T) {
	s := NewSession("c1", 1024)

	var buf []byte
	buf = append(buf, maskFrame(OpText, []byte("good"))...)
	bad := maskFrame(OpText, []byte("bad"))
	bad[0] = 0x83 // FIN + reserved opcode 0x3
	buf = append(buf, bad...)

	out, err := s.Feed(buf)
	if err == nil {
		t.Fatal("expected decode error for the malformed frame")
	}
	if len(out.Messages) != 1 || string(out.Messages[0]) != "good" {
		t.Errorf("frames before the malformed one must dispatch, got %q", out.Messages)
	}
}
