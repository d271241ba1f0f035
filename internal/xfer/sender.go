// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package xfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/meshwave/meshwave-go/internal/wire"
)

// FrameWriter is the subset of a peer connection the sender needs.
// internal/peer's Client satisfies this directly.
type FrameWriter interface {
	WriteFrame(f wire.Frame) error
}

// SendOptions configures optional throttling and compression for one
// outbound transfer. The zero value sends uncompressed at full speed.
type SendOptions struct {
	Limiter     *rate.Limiter
	Compression wire.CompressionMode

	// OnRegistered, if set, is called with the transfer's id right
	// after registration and before the FILE_META frame is written.
	// internal/peer uses this to start steering incoming acks to this
	// transfer before a reply to META can possibly arrive.
	OnRegistered func(id int32)
}

// SendFile registers a new outbound transfer, sends its FILE_META
// frame synchronously, then starts the chunked send loop in the
// background. The returned Transfer can be polled or paused/resumed
// while the goroutine runs.
func (e *Engine) SendFile(ctx context.Context, fw FrameWriter, peerName, filePath string, opts SendOptions) (*Transfer, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("xfer: open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xfer: stat %s: %w", filePath, err)
	}

	size := info.Size()
	totalChunks := uint32((size + ChunkSize - 1) / ChunkSize)

	id := e.newID()
	basename := filepath.Base(filePath)
	t := NewTransfer(id, peerName, basename, size, totalChunks)
	e.register(t)

	if opts.OnRegistered != nil {
		opts.OnRegistered(id)
	}

	metaPayload := wire.EncodeFileMeta(peerName, basename, totalChunks, uint64(size), opts.Compression)
	if err := fw.WriteFrame(wire.Frame{Type: wire.MsgFileMeta, Seq: 0, Payload: metaPayload}); err != nil {
		f.Close()
		t.fail()
		return t, fmt.Errorf("xfer: send meta: %w", err)
	}

	if totalChunks == 0 {
		f.Close()
		t.markActive()
		t.markDone()
		e.notify(t, StateDone)
		e.logger.Info("xfer: send complete", "id", id, "peer", peerName, "file", basename, "chunks", 0)
		return t, nil
	}

	t.markActive()
	e.notify(t, StateActive)
	e.logger.Info("xfer: send started", "id", id, "peer", peerName, "file", basename, "chunks", totalChunks)

	var codec *chunkCodec
	if opts.Compression != wire.CompressionNone {
		codec = newChunkCodec(opts.Compression)
	}

	go e.sendLoop(ctx, fw, t, f, opts, codec)

	return t, nil
}

func (e *Engine) sendLoop(ctx context.Context, fw FrameWriter, t *Transfer, f *os.File, opts SendOptions, codec *chunkCodec) {
	defer f.Close()

	buf := make([]byte, ChunkSize)
	_, total := t.Progress()

	for seq := uint32(0); seq < total; seq++ {
		select {
		case <-ctx.Done():
			t.fail()
			e.notify(t, StateError)
			return
		default:
		}

		switch state := t.waitWhilePaused(ctx.Done()); state {
		case StateError:
			e.notify(t, StateError)
			return
		case StatePaused:
			// context canceled while still paused
			t.fail()
			e.notify(t, StateError)
			return
		}

		if t.HasChunk(seq) {
			continue
		}

		n, err := f.ReadAt(buf, int64(seq)*ChunkSize)
		if err != nil && n == 0 && t.TotalBytes > 0 {
			t.fail()
			e.notify(t, StateError)
			e.logger.Error("xfer: read failed", "id", t.ID, "seq", seq, "error", err)
			return
		}
		data := buf[:n]
		if codec != nil {
			compressed, err := codec.compress(data)
			if err != nil {
				t.fail()
				e.notify(t, StateError)
				e.logger.Error("xfer: compress failed", "id", t.ID, "seq", seq, "error", err)
				return
			}
			data = compressed
		}

		if !e.sendChunkWithRetry(ctx, fw, t, seq, data, opts.Limiter) {
			return
		}
	}

	if t.State() == StateDone {
		e.notify(t, StateDone)
		e.logger.Info("xfer: send complete", "id", t.ID)
	}
}

// ackOutcome is what awaitChunkAck learned about the chunk it waited on.
type ackOutcome int

const (
	ackDone ackOutcome = iota
	ackRetry
	ackFreeRetry // paused then resumed: doesn't count against MaxRetries
	ackAbort
)

// sendChunkWithRetry sends one chunk, re-sending it on NACK or timeout
// for at most MaxRetries attempts in all. Returns false if the transfer
// should stop (error or cancellation).
func (e *Engine) sendChunkWithRetry(ctx context.Context, fw FrameWriter, t *Transfer, seq uint32, data []byte, limiter *rate.Limiter) bool {
	payload := wire.EncodeFileChunk(uint32(t.ID), data)

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if limiter != nil {
			if err := waitForBudget(ctx, limiter, len(payload)); err != nil {
				t.fail()
				e.notify(t, StateError)
				return false
			}
		}

		if err := fw.WriteFrame(wire.Frame{Type: wire.MsgFileChunk, Seq: seq, Payload: payload}); err != nil {
			t.fail()
			e.notify(t, StateError)
			e.logger.Error("xfer: write failed", "id", t.ID, "seq", seq, "error", err)
			return false
		}

		switch e.awaitChunkAck(ctx, t, seq, attempt) {
		case ackDone:
			return true
		case ackAbort:
			return false
		case ackFreeRetry:
			attempt--
		case ackRetry:
			// counted against MaxRetries by the loop itself
		}
	}

	t.fail()
	e.notify(t, StateError)
	e.logger.Error("xfer: chunk failed after retries", "id", t.ID, "seq", seq, "retries", MaxRetries)
	return false
}

// awaitChunkAck blocks for the ack of the chunk at seq, discarding any
// ack/nack that names a different seq (a stray reply to FILE_META or a
// stale retry) instead of treating it as this chunk's outcome.
func (e *Engine) awaitChunkAck(ctx context.Context, t *Transfer, seq uint32, attempt int) ackOutcome {
	for {
		select {
		case ev := <-t.ackCh:
			switch ev.Kind {
			case AckChunk:
				if ev.Seq != seq {
					e.logger.Debug("xfer: discarding ack for unrelated seq", "id", t.ID, "want_seq", seq, "got_seq", ev.Seq)
					continue
				}
				t.markChunkDone(seq)
				e.notify(t, StateActive)
				return ackDone
			case NackChunk:
				if ev.Seq != seq {
					e.logger.Debug("xfer: discarding nack for unrelated seq", "id", t.ID, "want_seq", seq, "got_seq", ev.Seq)
					continue
				}
				e.logger.Warn("xfer: chunk nacked, retrying", "id", t.ID, "seq", seq, "attempt", attempt+1)
				return ackRetry
			case PauseRequested:
				t.Pause()
				e.notify(t, StatePaused)
				e.logger.Info("xfer: paused", "id", t.ID, "seq", seq)
				if state := t.waitWhilePaused(ctx.Done()); state != StateActive {
					e.notify(t, state)
					return ackAbort
				}
				return ackFreeRetry
			}
		case <-time.After(AckTimeout):
			e.logger.Warn("xfer: ack timeout, retrying", "id", t.ID, "seq", seq, "attempt", attempt+1)
			return ackRetry
		case <-ctx.Done():
			t.fail()
			e.notify(t, StateError)
			return ackAbort
		}
	}
}

// waitForBudget consumes n bytes of the limiter's budget, splitting the
// request into burst-sized slices (grounded on the throttled-writer
// pattern of chunking any write larger than one burst).
func waitForBudget(ctx context.Context, limiter *rate.Limiter, n int) error {
	for n > 0 {
		take := n
		if burst := limiter.Burst(); take > burst {
			take = burst
		}
		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

