// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package xfer

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// EventFunc is invoked on every transfer state change, mirroring the
// original's single global notify callback but scoped to one Engine
// instance instead of a process-wide function pointer.
type EventFunc func(id int32, state State, done, total uint32)

// Engine owns the set of in-flight transfers for one peer connection. It replaces the fixed-size global transfer table with a
// map and an atomic id counter.
type Engine struct {
	logger  *slog.Logger
	onEvent EventFunc

	nextID atomic.Int32

	mu        sync.Mutex
	transfers map[int32]*Transfer
	recvCtxs  map[int32]*recvCtx
}

// NewEngine builds an Engine. onEvent may be nil if the caller doesn't
// need progress notifications.
func NewEngine(logger *slog.Logger, onEvent EventFunc) *Engine {
	return &Engine{
		logger:    logger,
		onEvent:   onEvent,
		transfers: make(map[int32]*Transfer),
		recvCtxs:  make(map[int32]*recvCtx),
	}
}

func (e *Engine) newID() int32 {
	return e.nextID.Add(1)
}

// NextID assigns a fresh transfer id from the counter SendFile uses.
// Inbound transfers do not draw from it: ReceiveMeta takes the id the
// sender put on its FILE_CHUNK frames.
func (e *Engine) NextID() int32 {
	return e.newID()
}

func (e *Engine) register(t *Transfer) {
	e.mu.Lock()
	e.transfers[t.ID] = t
	e.mu.Unlock()
}

// Find looks up a transfer by id.
func (e *Engine) Find(id int32) (*Transfer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transfers[id]
	return t, ok
}

// All returns a snapshot of every known transfer.
func (e *Engine) All() []*Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Transfer, 0, len(e.transfers))
	for _, t := range e.transfers {
		out = append(out, t)
	}
	return out
}

// Remove drops a transfer from the table, typically once it reaches a
// terminal state and its progress has been consumed.
func (e *Engine) Remove(id int32) {
	e.mu.Lock()
	delete(e.transfers, id)
	e.mu.Unlock()
}

// DeliverAck routes an ACK/NACK/PAUSE frame to the transfer it names,
// a no-op if the id is unknown (the transfer may already have
// finished or errored).
func (e *Engine) DeliverAck(id int32, ev AckEvent) {
	if t, ok := e.Find(id); ok {
		t.DeliverAck(ev)
	}
}

func (e *Engine) notify(t *Transfer, state State) {
	done, total := t.Progress()
	if e.onEvent != nil {
		e.onEvent(t.ID, state, done, total)
	}
}
