// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Package xfer implements chunked file transfer with pause/resume and
// per-chunk retry, mirroring the wire-level semantics of the original
// send/receive state machine but replacing polling with condition
// variables and giving every transfer its own owned chunk bitmap.
package xfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a transfer's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// ChunkSize is the fixed size of one file chunk, matching the wire
	// frame's chunk payload budget.
	ChunkSize = 64 * 1024
	// MaxRetries is how many attempts, the first send included, the
	// sender makes for one chunk; after that many consecutive NACKs or
	// ack timeouts the transfer enters StateError.
	MaxRetries = 3
	// AckTimeout bounds how long the sender waits for an ACK/NACK
	// before counting the attempt as a retry.
	AckTimeout = 2 * time.Second
)

// AckKind distinguishes the three responses a sender can receive for
// an in-flight chunk.
type AckKind int

const (
	AckChunk AckKind = iota
	NackChunk
	PauseRequested
)

// AckEvent is delivered to a sending Transfer's ack channel by whatever
// owns the connection (internal/peer) when it reads a FILE_ACK,
// FILE_NACK, or PAUSE frame addressed to this transfer.
type AckEvent struct {
	Seq  uint32
	Kind AckKind
}

// Transfer is one file transfer, either outbound (send) or inbound
// (receive). The chunk bitmap is an owned field, not a pointer shared
// with a side table, so a Transfer can be passed around and inspected
// without aliasing surprises.
type Transfer struct {
	ID         int32
	Peer       string
	Filename   string
	TotalBytes int64

	// CorrelationID is never sent on the wire (the 32-bit ID is) and
	// exists only for a presentation layer to join transfer rows across
	// a hub restart, where small sender-chosen ids get reused.
	CorrelationID uuid.UUID

	mu          sync.Mutex
	resumed     sync.Cond
	state       State
	totalChunks uint32
	doneChunks  uint32
	bitmap      []byte

	ackCh chan AckEvent
}

// NewTransfer builds a Transfer in StateIdle. The caller supplies
// totalChunks: the sender computes it from the file size and ChunkSize,
// the receiver takes it from the FILE_META frame.
func NewTransfer(id int32, peer, filename string, totalBytes int64, totalChunks uint32) *Transfer {
	t := &Transfer{
		ID:            id,
		Peer:          peer,
		Filename:      filename,
		TotalBytes:    totalBytes,
		CorrelationID: uuid.New(),
		state:         StateIdle,
		totalChunks:   totalChunks,
		bitmap:        make([]byte, (totalChunks+7)/8),
		ackCh:         make(chan AckEvent, 1),
	}
	t.resumed.L = &t.mu
	return t
}

// DeliverAck forwards an ACK/NACK/PAUSE observed on the connection to
// the sender goroutine waiting in sendLoop. Non-blocking: a late or
// duplicate ack for a seq the sender has moved past is dropped rather
// than stalling the receive loop.
func (t *Transfer) DeliverAck(ev AckEvent) {
	select {
	case t.ackCh <- ev:
	default:
	}
}

// State returns the transfer's current lifecycle stage.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns chunks completed and chunks total.
func (t *Transfer) Progress() (done, total uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneChunks, t.totalChunks
}

func (t *Transfer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// markActive sets the state to ACTIVE without checking the prior
// state; used by both sender and receiver at transfer start.
func (t *Transfer) markActive() {
	t.setState(StateActive)
}

// HasChunk reports whether seq is already recorded in the bitmap,
// letting a resumed sender skip chunks the peer already acknowledged.
func (t *Transfer) HasChunk(seq uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasChunkLocked(seq)
}

func (t *Transfer) hasChunkLocked(seq uint32) bool {
	idx := seq / 8
	if int(idx) >= len(t.bitmap) {
		return false
	}
	return t.bitmap[idx]&(1<<(seq%8)) != 0
}

// markChunkDone records seq in the bitmap and advances doneChunks.
// Returns true if the transfer is now complete.
func (t *Transfer) markChunkDone(seq uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasChunkLocked(seq) {
		idx := seq / 8
		if int(idx) < len(t.bitmap) {
			t.bitmap[idx] |= 1 << (seq % 8)
		}
		t.doneChunks++
	}

	if t.doneChunks >= t.totalChunks {
		t.state = StateDone
		return true
	}
	return false
}

// Pause moves an ACTIVE transfer to PAUSED. A no-op if the transfer
// isn't active.
func (t *Transfer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return false
	}
	t.state = StatePaused
	return true
}

// Resume moves a PAUSED transfer back to ACTIVE and wakes any sender
// blocked in waitWhilePaused.
func (t *Transfer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePaused {
		return false
	}
	t.state = StateActive
	t.resumed.Broadcast()
	return true
}

// markDone forces the transfer straight to DONE, used for the
// zero-chunk boundary case where there is no chunk to mark.
func (t *Transfer) markDone() {
	t.setState(StateDone)
}

// fail moves the transfer to ERROR and wakes any waiter so it can
// observe the terminal state instead of blocking forever.
func (t *Transfer) fail() {
	t.mu.Lock()
	t.state = StateError
	t.resumed.Broadcast()
	t.mu.Unlock()
}

// waitWhilePaused blocks the calling goroutine (the sender's chunk
// loop) while the transfer is PAUSED, waking on Resume, fail, or
// cancel. It returns the state observed once it stops waiting.
func (t *Transfer) waitWhilePaused(cancel <-chan struct{}) State {
	t.mu.Lock()
	if t.state != StatePaused {
		defer t.mu.Unlock()
		return t.state
	}

	// sync.Cond has no context-aware wait, so a watcher goroutine
	// broadcasts on cancellation to unblock Wait().
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			t.mu.Lock()
			t.resumed.Broadcast()
			t.mu.Unlock()
		case <-done:
		}
	}()

	for t.state == StatePaused {
		select {
		case <-cancel:
			t.mu.Unlock()
			close(done)
			return StatePaused
		default:
		}
		t.resumed.Wait()
	}
	close(done)
	state := t.state
	t.mu.Unlock()
	return state
}
