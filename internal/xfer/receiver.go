// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package xfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshwave/meshwave-go/internal/wire"
)

// ReceiveMeta registers an inbound transfer from a FILE_META frame and
// opens the destination file. saveDir is joined with the sender's
// basename; an empty saveDir writes to the current directory.
func (e *Engine) ReceiveMeta(id int32, sender, filename string, totalChunks uint32, fileSize int64, compression wire.CompressionMode, saveDir string) (*Transfer, error) {
	filename, err := sanitizeBasename(filename)
	if err != nil {
		return nil, err
	}

	path := filename
	if saveDir != "" {
		path = filepath.Join(saveDir, filename)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("xfer: create %s: %w", path, err)
	}
	if fileSize > 0 {
		if err := f.Truncate(fileSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("xfer: preallocate %s: %w", path, err)
		}
	}

	t := NewTransfer(id, sender, filename, fileSize, totalChunks)
	t.markActive()
	e.register(t)

	if totalChunks == 0 {
		f.Close()
		t.markDone()
		e.notify(t, StateDone)
		e.logger.Info("xfer: receive complete", "id", id, "from", sender, "file", filename, "chunks", 0, "bytes", fileSize)
		return t, nil
	}

	var codec *chunkCodec
	if compression != wire.CompressionNone {
		codec = newChunkCodec(compression)
	}

	rc := &recvCtx{path: path, file: f, codec: codec}
	e.mu.Lock()
	e.recvCtxs[id] = rc
	e.mu.Unlock()

	e.notify(t, StateActive)
	e.logger.Info("xfer: receiving", "id", id, "from", sender, "file", filename, "chunks", totalChunks, "bytes", fileSize)

	return t, nil
}

type recvCtx struct {
	path  string
	file  *os.File
	codec *chunkCodec
}

// ReceiveChunk writes one chunk to its offset in the destination file
// and reports whether to ACK or NACK it back to the sender. A write
// failure yields a NACK so the sender retries instead of silently
// truncating the file.
func (e *Engine) ReceiveChunk(id int32, seq uint32, data []byte) (ack bool, done bool, err error) {
	t, ok := e.Find(id)
	if !ok {
		return false, false, fmt.Errorf("xfer: unknown transfer %d", id)
	}
	if state := t.State(); state == StatePaused || state == StateError {
		return false, false, fmt.Errorf("xfer: transfer %d not accepting chunks (state %s)", id, state)
	}

	e.mu.Lock()
	rc, ok := e.recvCtxs[id]
	e.mu.Unlock()
	if !ok {
		return false, false, fmt.Errorf("xfer: no receive context for transfer %d", id)
	}

	if rc.codec != nil {
		decoded, derr := rc.codec.decompress(data)
		if derr != nil {
			e.logger.Warn("xfer: decompress failed, nacking", "id", id, "seq", seq, "error", derr)
			return false, false, nil
		}
		data = decoded
	}

	offset := int64(seq) * ChunkSize
	if _, err := rc.file.WriteAt(data, offset); err != nil {
		e.logger.Error("xfer: write failed, nacking", "id", id, "seq", seq, "error", err)
		return false, false, nil
	}

	isDone := t.markChunkDone(seq)
	e.notify(t, StateActive)

	if isDone {
		rc.file.Close()
		e.mu.Lock()
		delete(e.recvCtxs, id)
		e.mu.Unlock()
		e.notify(t, StateDone)
		e.logger.Info("xfer: receive complete", "id", id, "path", rc.path)
	}

	return true, isDone, nil
}
