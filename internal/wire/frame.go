// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Package wire implements the framed protocol shared by the hub and the
// peer endpoint: a fixed 7-byte header followed by a length-delimited
// payload, plus the payload grammars for each message type.
//
// The header is standardized on big-endian for every field. The original
// implementation this protocol was distilled from sent seq/payload_len in
// the host's native byte order; this is a deliberate protocol version bump
// (see DESIGN.md) rather than a native-order-preserving port.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies the kind of a Frame.
type MsgType byte

// Message types, per the wire grammar.
const (
	MsgHello     MsgType = 0x01
	MsgChat      MsgType = 0x02
	MsgFileMeta  MsgType = 0x03
	MsgFileChunk MsgType = 0x04
	MsgFileAck   MsgType = 0x05
	MsgFileNack  MsgType = 0x06
	MsgPause     MsgType = 0x07
	MsgResume    MsgType = 0x08
	MsgBye       MsgType = 0x09
)

func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgChat:
		return "CHAT"
	case MsgFileMeta:
		return "FILE_META"
	case MsgFileChunk:
		return "FILE_CHUNK"
	case MsgFileAck:
		return "FILE_ACK"
	case MsgFileNack:
		return "FILE_NACK"
	case MsgPause:
		return "PAUSE"
	case MsgResume:
		return "RESUME"
	case MsgBye:
		return "BYE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// Size and capacity constants, per the defaults table.
const (
	FrameHeaderSize = 7
	ChunkSize       = 64 * 1024
	MaxChatPayload  = 4096
	MaxChunkPayload = ChunkSize + 4 // xfer id prefix + data
	maxFramePayload = 65535

	// MaxNameLength bounds a peer name, including the name a HELLO
	// payload assigns. MAX_NAME - 1 for the trailing NUL the original
	// name buffer reserved.
	MaxNameLength = 63
)

// Errors surfaced by the codec. Per the error-handling taxonomy, a caller
// that sees one of these should discard the offending frame and continue
// the session rather than treat it as fatal, unless the underlying io.Reader
// itself failed.
var (
	ErrPayloadTooLarge   = errors.New("wire: payload exceeds the cap for this message type")
	ErrMissingSeparator  = errors.New("wire: payload missing NUL separator")
	ErrTruncatedFileMeta = errors.New("wire: truncated FILE_META payload")
	ErrTruncatedChunk    = errors.New("wire: truncated FILE_CHUNK payload")
)

// Frame is one unit of the wire protocol.
type Frame struct {
	Type    MsgType
	Seq     uint32
	Payload []byte
}

// maxPayloadFor returns the cap a receiver enforces for a given message
// type. Types with no payload are capped at zero; CHAT/HELLO are capped at
// MaxChatPayload; FILE_CHUNK is capped at MaxChunkPayload; FILE_META has no
// type-specific cap beyond the wire-format maximum.
func maxPayloadFor(t MsgType) int {
	switch t {
	case MsgChat, MsgHello:
		return MaxChatPayload
	case MsgFileChunk:
		return MaxChunkPayload
	case MsgFileAck, MsgFileNack, MsgPause, MsgResume, MsgBye:
		return 0
	default:
		return maxFramePayload
	}
}

// ReadFrame reads one frame from r. On a payload that exceeds the cap for
// its type, the oversized payload is still drained from r (to keep the
// stream in sync) and ErrPayloadTooLarge is returned so the caller can
// discard the frame and continue reading.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	typ := MsgType(hdr[0])
	seq := binary.BigEndian.Uint32(hdr[1:5])
	payloadLen := int(binary.BigEndian.Uint16(hdr[5:7]))

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("reading frame payload (type=%s): %w", typ, err)
		}
	}

	if payloadLen > maxPayloadFor(typ) {
		return nil, fmt.Errorf("%w: type=%s len=%d", ErrPayloadTooLarge, typ, payloadLen)
	}

	return &Frame{Type: typ, Seq: seq, Payload: payload}, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxFramePayload {
		return fmt.Errorf("%w: len=%d", ErrPayloadTooLarge, len(f.Payload))
	}

	var hdr [FrameHeaderSize]byte
	hdr[0] = byte(f.Type)
	binary.BigEndian.PutUint32(hdr[1:5], f.Seq)
	binary.BigEndian.PutUint16(hdr[5:7], uint16(len(f.Payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing frame header (type=%s): %w", f.Type, err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("writing frame payload (type=%s): %w", f.Type, err)
		}
	}
	return nil
}
