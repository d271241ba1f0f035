// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CompressionMode advertises the chunk codec a sender used for a transfer,
// carried as a trailing byte on FILE_META.
type CompressionMode byte

const (
	CompressionNone CompressionMode = 0x00
	CompressionZstd CompressionMode = 0x01
	CompressionGzip CompressionMode = 0x02
)

// EncodeChat builds a CHAT "name\0text" payload.
func EncodeChat(name, text string) []byte {
	buf := make([]byte, 0, len(name)+1+len(text))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, text...)
	return buf
}

// DecodeChat splits a "name\0text" payload produced by EncodeChat.
func DecodeChat(payload []byte) (name, text string, err error) {
	sep := bytes.IndexByte(payload, 0)
	if sep < 0 {
		return "", "", ErrMissingSeparator
	}
	return string(payload[:sep]), string(payload[sep+1:]), nil
}

// EncodeFileMeta builds a FILE_META payload:
// recipient\0basename\0 total_chunks_be(4) file_size_be(8) compression(1)
func EncodeFileMeta(recipient, basename string, totalChunks uint32, fileSize uint64, compression CompressionMode) []byte {
	buf := make([]byte, 0, len(recipient)+1+len(basename)+1+4+8+1)
	buf = append(buf, recipient...)
	buf = append(buf, 0)
	buf = append(buf, basename...)
	buf = append(buf, 0)

	var num [12]byte
	binary.BigEndian.PutUint32(num[0:4], totalChunks)
	binary.BigEndian.PutUint64(num[4:12], fileSize)
	buf = append(buf, num[:]...)
	buf = append(buf, byte(compression))
	return buf
}

// FileMeta is the decoded form of a FILE_META payload.
type FileMeta struct {
	Recipient   string
	Basename    string
	TotalChunks uint32
	FileSize    uint64
	Compression CompressionMode
}

// DecodeFileMeta parses a FILE_META payload. The trailing compression byte
// is optional for forward tolerance; its absence decodes as CompressionNone.
func DecodeFileMeta(payload []byte) (*FileMeta, error) {
	sep1 := bytes.IndexByte(payload, 0)
	if sep1 < 0 {
		return nil, ErrMissingSeparator
	}
	rest := payload[sep1+1:]
	sep2 := bytes.IndexByte(rest, 0)
	if sep2 < 0 {
		return nil, ErrMissingSeparator
	}
	basename := rest[:sep2]
	nums := rest[sep2+1:]
	if len(nums) < 12 {
		return nil, fmt.Errorf("%w: need 12 bytes, got %d", ErrTruncatedFileMeta, len(nums))
	}

	meta := &FileMeta{
		Recipient:   string(payload[:sep1]),
		Basename:    string(basename),
		TotalChunks: binary.BigEndian.Uint32(nums[0:4]),
		FileSize:    binary.BigEndian.Uint64(nums[4:12]),
	}
	if len(nums) >= 13 {
		meta.Compression = CompressionMode(nums[12])
	}
	return meta, nil
}

// EncodeFileChunk builds a FILE_CHUNK payload: xfer_id_be(4) data.
func EncodeFileChunk(xferID uint32, data []byte) []byte {
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[0:4], xferID)
	copy(buf[4:], data)
	return buf
}

// DecodeFileChunk splits a FILE_CHUNK payload into its transfer id and data.
func DecodeFileChunk(payload []byte) (xferID uint32, data []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("%w: need 4 bytes, got %d", ErrTruncatedChunk, len(payload))
	}
	return binary.BigEndian.Uint32(payload[0:4]), payload[4:], nil
}
