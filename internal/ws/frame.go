// Package ws implements the RFC 6455 engine for the shared listener:
// handshake, frame codec, and the per-client session state machine that
// turns raw reads into dispatchable JSON messages.
package ws

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode is an RFC 6455 frame opcode.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control frame opcode.
func (o Opcode) IsControl() bool {
	return o == OpClose || o == OpPing || o == OpPong
}

// known reports whether the opcode appears in the RFC 6455 grammar subset
// this engine accepts.
func (o Opcode) known() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// MaxFramePayload is the hard per-frame payload limit. Frames declaring a
// larger payload are rejected before any buffering happens, independent of
// the configured max message size.
const MaxFramePayload = 16 << 20 // 16 MiB

// ErrFrameTooLarge is returned when a frame declares a payload beyond
// MaxFramePayload.
var ErrFrameTooLarge = errors.New("frame payload exceeds maximum allowed size")

// Frame is a single decoded RFC 6455 frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// decodeFrame parses one frame from raw. Returns the frame and the number
// of bytes consumed. An incomplete frame returns (nil, 0, nil) so the caller
// retains the bytes for the next read.
func decodeFrame(raw []byte) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}

	fin := raw[0]&0x80 != 0
	opcode := Opcode(raw[0] & 0x0F)
	masked := raw[1]&0x80 != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	if !opcode.known() {
		return nil, 0, fmt.Errorf("unknown opcode 0x%X", byte(opcode))
	}

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		// Compared as uint64 so a high-bit length cannot wrap negative.
		wide := binary.BigEndian.Uint64(raw[offset:])
		if wide > MaxFramePayload {
			return nil, 0, ErrFrameTooLarge
		}
		length = int64(wide)
		offset += 8
	}

	if length > MaxFramePayload {
		return nil, 0, ErrFrameTooLarge
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return &Frame{
		Fin:     fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, total, nil
}

// declaredLength reports the payload length declared by the partial frame at
// the front of buf. ok is false while too few header bytes have arrived to
// know the length.
func declaredLength(buf []byte) (int64, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	length := uint64(buf[1] & 0x7F)
	switch length {
	case 126:
		if len(buf) < 4 {
			return 0, false
		}
		length = uint64(binary.BigEndian.Uint16(buf[2:]))
	case 127:
		if len(buf) < 10 {
			return 0, false
		}
		length = binary.BigEndian.Uint64(buf[2:])
	}
	if length > MaxFramePayload {
		return MaxFramePayload + 1, true
	}
	return int64(length), true
}

// DecodeFrames parses every complete frame at the front of buf. It returns
// the decoded frames and the residual bytes of the trailing incomplete
// frame, if any. A malformed frame aborts decoding at that position; frames
// decoded before it are still returned alongside the error.
func DecodeFrames(buf []byte) ([]Frame, []byte, error) {
	var frames []Frame
	for len(buf) > 0 {
		frame, consumed, err := decodeFrame(buf)
		if err != nil {
			return frames, buf, err
		}
		if frame == nil {
			break
		}
		frames = append(frames, *frame)
		buf = buf[consumed:]
	}
	return frames, buf, nil
}

// EncodeFrame serializes a single server-to-client frame: always FIN=1 and
// unmasked, with the shortest length encoding that fits.
func EncodeFrame(opcode Opcode, payload []byte) []byte {
	b0 := byte(0x80) | byte(opcode&0x0F)
	plen := len(payload)

	var out []byte
	switch {
	case plen <= 125:
		out = make([]byte, 0, 2+plen)
		out = append(out, b0, byte(plen))
	case plen <= 0xFFFF:
		out = make([]byte, 0, 4+plen)
		out = append(out, b0, 126)
		out = binary.BigEndian.AppendUint16(out, uint16(plen))
	default:
		out = make([]byte, 0, 10+plen)
		out = append(out, b0, 127)
		out = binary.BigEndian.AppendUint64(out, uint64(plen))
	}
	return append(out, payload...)
}
