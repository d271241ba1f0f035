// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Frame
	}{
		{"HELLO", Frame{Type: MsgHello, Seq: 0, Payload: []byte("alice")}},
		{"CHAT", Frame{Type: MsgChat, Seq: 0, Payload: EncodeChat("bob", "hello")}},
		{"FILE_ACK empty payload", Frame{Type: MsgFileAck, Seq: 7}},
		{"FILE_NACK empty payload", Frame{Type: MsgFileNack, Seq: 2}},
		{"BYE", Frame{Type: MsgBye}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.in); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}

			if got.Type != tt.in.Type {
				t.Errorf("type: got %s, want %s", got.Type, tt.in.Type)
			}
			if got.Seq != tt.in.Seq {
				t.Errorf("seq: got %d, want %d", got.Seq, tt.in.Seq)
			}
			if !bytes.Equal(got.Payload, tt.in.Payload) {
				t.Errorf("payload: got %q, want %q", got.Payload, tt.in.Payload)
			}

			// Re-encode and compare bytes for a true round trip.
			var buf2 bytes.Buffer
			if err := WriteFrame(&buf2, *got); err != nil {
				t.Fatalf("WriteFrame (second pass): %v", err)
			}
			var buf3 bytes.Buffer
			WriteFrame(&buf3, tt.in)
			if !bytes.Equal(buf2.Bytes(), buf3.Bytes()) {
				t.Errorf("decode-then-encode not byte-identical")
			}
		})
	}
}

func TestFrame_HeaderIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Type: MsgFileChunk, Seq: 0x01020304, Payload: []byte{0xAA, 0xBB}}
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != FrameHeaderSize+2 {
		t.Fatalf("unexpected frame length %d", len(raw))
	}
	if raw[0] != byte(MsgFileChunk) {
		t.Errorf("type byte: got 0x%02x", raw[0])
	}
	if raw[1] != 0x01 || raw[2] != 0x02 || raw[3] != 0x03 || raw[4] != 0x04 {
		t.Errorf("seq not big-endian: % x", raw[1:5])
	}
	if raw[5] != 0x00 || raw[6] != 0x02 {
		t.Errorf("payload_len not big-endian: % x", raw[5:7])
	}
}

func TestFrame_OversizedChatPayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxChatPayload+1)
	// Write the frame by hand to simulate a misbehaving sender
	// (WriteFrame itself only checks the 65535-byte wire maximum);
	// ReadFrame must still enforce the per-type cap.
	hdr := make([]byte, FrameHeaderSize)
	hdr[0] = byte(MsgChat)
	hdr[5] = byte(len(payload) >> 8)
	hdr[6] = byte(len(payload))
	buf.Write(hdr)
	buf.Write(payload)

	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected ErrPayloadTooLarge")
	}
}

func TestChat_EncodeDecode(t *testing.T) {
	payload := EncodeChat("bob", "hello there")
	name, text, err := DecodeChat(payload)
	if err != nil {
		t.Fatalf("DecodeChat: %v", err)
	}
	if name != "bob" || text != "hello there" {
		t.Errorf("got name=%q text=%q", name, text)
	}
}

func TestChat_EmptyRecipientStillDecodes(t *testing.T) {
	// The wire format permits it; the peer endpoint is responsible for
	// rejecting an empty recipient at send_chat time (see peer package).
	payload := EncodeChat("", "hi")
	name, text, err := DecodeChat(payload)
	if err != nil {
		t.Fatalf("DecodeChat: %v", err)
	}
	if name != "" || text != "hi" {
		t.Errorf("got name=%q text=%q", name, text)
	}
}

func TestChat_MissingSeparator(t *testing.T) {
	_, _, err := DecodeChat([]byte("no-separator-here"))
	if err != ErrMissingSeparator {
		t.Errorf("got %v, want ErrMissingSeparator", err)
	}
}

func TestFileMeta_EncodeDecode(t *testing.T) {
	payload := EncodeFileMeta("bob", "report.pdf", 4, 200000, CompressionZstd)
	meta, err := DecodeFileMeta(payload)
	if err != nil {
		t.Fatalf("DecodeFileMeta: %v", err)
	}
	if meta.Recipient != "bob" || meta.Basename != "report.pdf" {
		t.Errorf("got recipient=%q basename=%q", meta.Recipient, meta.Basename)
	}
	if meta.TotalChunks != 4 || meta.FileSize != 200000 {
		t.Errorf("got total_chunks=%d file_size=%d", meta.TotalChunks, meta.FileSize)
	}
	if meta.Compression != CompressionZstd {
		t.Errorf("got compression=%d", meta.Compression)
	}
}

func TestFileMeta_ZeroByteFile(t *testing.T) {
	payload := EncodeFileMeta("bob", "empty.txt", 0, 0, CompressionNone)
	meta, err := DecodeFileMeta(payload)
	if err != nil {
		t.Fatalf("DecodeFileMeta: %v", err)
	}
	if meta.TotalChunks != 0 || meta.FileSize != 0 {
		t.Errorf("got total_chunks=%d file_size=%d", meta.TotalChunks, meta.FileSize)
	}
}

func TestFileChunk_EncodeDecode(t *testing.T) {
	data := []byte("some chunk bytes")
	payload := EncodeFileChunk(42, data)
	id, got, err := DecodeFileChunk(payload)
	if err != nil {
		t.Fatalf("DecodeFileChunk: %v", err)
	}
	if id != 42 {
		t.Errorf("got xfer id %d, want 42", id)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got data %q, want %q", got, data)
	}
}

func TestFileChunk_Truncated(t *testing.T) {
	_, _, err := DecodeFileChunk([]byte{0x00, 0x01})
	if err == nil {
		t.Fatal("expected truncation error")
	}
}
