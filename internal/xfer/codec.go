// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package xfer

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/meshwave/meshwave-go/internal/wire"
)

// chunkCodec compresses and decompresses chunk payloads, in whichever
// mode FILE_META advertised for the transfer. A single codec is built
// per transfer and reused for every chunk, mirroring the teacher's two
// compression modes (gzip default, zstd opt-in) though this protocol
// makes zstd the default and gzip the fallback, since zstd is
// uniformly faster at the chunk sizes this protocol uses.
type chunkCodec struct {
	mode wire.CompressionMode

	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newChunkCodec(mode wire.CompressionMode) *chunkCodec {
	return &chunkCodec{mode: mode}
}

func (c *chunkCodec) initZstd() {
	c.enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	c.dec, _ = zstd.NewReader(nil)
}

func (c *chunkCodec) compress(data []byte) ([]byte, error) {
	switch c.mode {
	case wire.CompressionGzip:
		return gzipCompress(data)
	default:
		c.once.Do(c.initZstd)
		return c.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
	}
}

func (c *chunkCodec) decompress(data []byte) ([]byte, error) {
	switch c.mode {
	case wire.CompressionGzip:
		return gzipDecompress(data)
	default:
		c.once.Do(c.initZstd)
		return c.dec.DecodeAll(data, nil)
	}
}

// gzipCompress/gzipDecompress use pgzip, a drop-in parallel
// implementation of compress/gzip, for the fallback compression mode.
// One-shot rather than streamed since a chunk is already bounded to
// ChunkSize.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := pgzip.NewWriterLevel(&buf, pgzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
