// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshwave/meshwave-go/internal/wire"
)

// DefaultMaxPeers bounds the peer table when New is called without an
// explicit cap, per the defaults table's MAX_PEERS.
const DefaultMaxPeers = 32

// Hub accepts peer connections, identifies them via HELLO, and routes
// chat and file-transfer frames between them.
type Hub struct {
	logger   *slog.Logger
	peers    *PeerTable
	maxPeers int

	nextPeerSeq atomic.Int64

	// Transfer routing state, REDESIGN FLAG: unicast instead of the
	// original's unconditional broadcast-except-sender for every
	// FILE_CHUNK/ACK/NACK/PAUSE/RESUME. None of those frames carry a
	// recipient name on the wire (FILE_META does, but no transfer id;
	// FILE_CHUNK carries a transfer id but no name), so the mapping is
	// learned incrementally as frames are observed rather than read
	// off a single field:
	//
	//   - pendingRecipient[sender] = recipient, set when a FILE_META
	//     is routed for sender, cleared once a chunk id claims it.
	//   - xferTarget[id] = recipient, xferSender[id] = sender, both set
	//     the first time a FILE_CHUNK bearing that id is seen from a
	//     peer with a pending recipient. Together they let PAUSE/RESUME
	//     (which carry an id but no name) route to whichever side
	//     didn't send the frame.
	//   - inboundSender[recipient] = sender, refreshed on every routed
	//     chunk, used to route the ack/nack back (those carry neither
	//     a name nor a transfer id on the wire).
	xferMu           sync.Mutex
	pendingRecipient map[string]string
	xferTarget       map[int32]string
	xferSender       map[int32]string
	inboundSender    map[string]string
}

// New creates a Hub ready to Run, capped at DefaultMaxPeers connections.
func New(logger *slog.Logger) *Hub {
	return NewWithMaxPeers(logger, DefaultMaxPeers)
}

// NewWithMaxPeers creates a Hub with an explicit peer table cap.
func NewWithMaxPeers(logger *slog.Logger, maxPeers int) *Hub {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &Hub{
		logger:           logger,
		peers:            NewPeerTable(),
		maxPeers:         maxPeers,
		pendingRecipient: make(map[string]string),
		xferTarget:       make(map[int32]string),
		xferSender:       make(map[int32]string),
		inboundSender:    make(map[string]string),
	}
}

// Run binds addr and serves until ctx is canceled.
func (h *Hub) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("hub: listen %s: %w", addr, err)
	}
	defer ln.Close()
	h.logger.Info("hub: listening", "addr", addr)
	return h.RunWithListener(ctx, ln)
}

// RunWithListener serves on a caller-provided listener, so tests can
// bind an ephemeral port. Mirrors the accept loop's backoff-on-error
// and per-connection-goroutine dispatch.
func (h *Hub) RunWithListener(ctx context.Context, ln net.Listener) error {
	housekeeping := h.startHousekeeping()
	defer func() { <-housekeeping.Stop().Done() }()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				h.logger.Info("hub: shutdown complete")
				return nil
			default:
				consecutiveErrors++
				h.logger.Error("hub: accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		go h.handleConnection(ctx, conn)
	}
}

// Peers returns a snapshot of connected peer names, for an external
// presentation layer.
func (h *Hub) Peers() []string {
	snap := h.peers.Snapshot()
	names := make([]string, len(snap))
	for i, p := range snap {
		names[i] = p.Name()
	}
	return names
}

func (h *Hub) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if h.peers.Len() >= h.maxPeers {
		h.logger.Warn("hub: peer table full, rejecting connection", "remote", conn.RemoteAddr())
		return
	}

	id := h.nextPeerSeq.Add(1)
	p := h.peers.Add(conn, fmt.Sprintf("peer_%d", id))
	logger := h.logger.With("peer", p.Name(), "remote", p.Addr)
	logger.Info("hub: peer connected")

	defer func() {
		h.peers.Remove(p)
		h.clearXferState(p.Name())
		logger.Info("hub: peer disconnected")
	}()

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, wire.ErrPayloadTooLarge) {
				logger.Warn("hub: discarding oversized frame", "error", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.Warn("hub: read error", "error", err)
			}
			return
		}

		if h.route(logger, p, frame) {
			return
		}
	}
}

// route dispatches one frame from "from". It returns true if the
// connection should be torn down (BYE).
func (h *Hub) route(logger *slog.Logger, from *Peer, frame *wire.Frame) bool {
	switch frame.Type {
	case wire.MsgHello:
		h.handleHello(logger, from, frame)
	case wire.MsgChat:
		h.routeChat(logger, from, frame)
	case wire.MsgFileMeta:
		h.routeFileMeta(logger, from, frame)
	case wire.MsgFileChunk:
		h.routeFileChunk(logger, from, frame)
	case wire.MsgFileAck, wire.MsgFileNack:
		h.routeBackToSender(logger, from, frame)
	case wire.MsgPause, wire.MsgResume:
		h.routeByXferID(logger, from, frame)
	case wire.MsgBye:
		logger.Info("hub: peer said goodbye", "name", from.Name())
		return true
	default:
		logger.Debug("hub: discarding unknown frame", "type", frame.Type)
	}
	return false
}

func (h *Hub) handleHello(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	name := string(frame.Payload)
	if name == "" {
		return
	}
	if len(name) > wire.MaxNameLength {
		name = name[:wire.MaxNameLength]
	}
	h.peers.Rename(from, name)
	logger.Info("hub: peer identified", "name", name)
}

func (h *Hub) routeChat(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	to, msg, err := wire.DecodeChat(frame.Payload)
	if err != nil {
		logger.Debug("hub: malformed chat frame", "error", err)
		return
	}

	routed := wire.Frame{
		Type:    wire.MsgChat,
		Seq:     frame.Seq,
		Payload: wire.EncodeChat(from.Name(), msg),
	}

	if target, ok := h.peers.FindByName(to); ok {
		h.send(logger, target, routed)
	} else {
		h.broadcastExcept(logger, from, routed)
	}
	logger.Info("hub: chat routed", "from", from.Name(), "to", to)
}

func (h *Hub) routeFileMeta(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	meta, err := wire.DecodeFileMeta(frame.Payload)
	if err != nil {
		logger.Debug("hub: malformed file_meta frame", "error", err)
		return
	}

	h.xferMu.Lock()
	h.pendingRecipient[from.Name()] = meta.Recipient
	h.xferMu.Unlock()

	if target, ok := h.peers.FindByName(meta.Recipient); ok {
		h.send(logger, target, *frame)
	} else {
		h.broadcastExcept(logger, from, *frame)
	}
}

func (h *Hub) routeFileChunk(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	rawID, _, err := wire.DecodeFileChunk(frame.Payload)
	if err != nil {
		logger.Debug("hub: malformed file_chunk frame", "error", err)
		return
	}
	id := int32(rawID)

	h.xferMu.Lock()
	target, known := h.xferTarget[id]
	if !known {
		if recipient, ok := h.pendingRecipient[from.Name()]; ok {
			target = recipient
			h.xferTarget[id] = recipient
			h.xferSender[id] = from.Name()
			delete(h.pendingRecipient, from.Name())
			known = true
		}
	}
	if known {
		h.inboundSender[target] = from.Name()
	}
	h.xferMu.Unlock()

	if known {
		if p, ok := h.peers.FindByName(target); ok {
			h.send(logger, p, *frame)
			return
		}
	}
	h.broadcastExcept(logger, from, *frame)
}

// routeByXferID handles PAUSE/RESUME, which carry the transfer id in
// Seq rather than in the payload. Whichever of the sender/recipient
// pair didn't originate the frame is the target: a receiver pauses the
// sender, and a sender resumes toward the receiver.
func (h *Hub) routeByXferID(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	id := int32(frame.Seq)

	h.xferMu.Lock()
	recipient, rok := h.xferTarget[id]
	sender, sok := h.xferSender[id]
	h.xferMu.Unlock()

	var target string
	var known bool
	switch from.Name() {
	case sender:
		target, known = recipient, rok
	case recipient:
		target, known = sender, sok
	}

	if known {
		if p, ok := h.peers.FindByName(target); ok {
			h.send(logger, p, *frame)
			return
		}
	}
	h.broadcastExcept(logger, from, *frame)
}

// routeBackToSender handles FILE_ACK/FILE_NACK, which carry neither a
// name nor a transfer id; they're routed to whoever most recently sent
// "from" a chunk.
func (h *Hub) routeBackToSender(logger *slog.Logger, from *Peer, frame *wire.Frame) {
	h.xferMu.Lock()
	sender, ok := h.inboundSender[from.Name()]
	h.xferMu.Unlock()

	if ok {
		if p, ok := h.peers.FindByName(sender); ok {
			h.send(logger, p, *frame)
			return
		}
	}
	h.broadcastExcept(logger, from, *frame)
}

func (h *Hub) clearXferState(name string) {
	h.xferMu.Lock()
	defer h.xferMu.Unlock()
	delete(h.pendingRecipient, name)
	delete(h.inboundSender, name)
	for id, target := range h.xferTarget {
		if target == name {
			delete(h.xferTarget, id)
			delete(h.xferSender, id)
		}
	}
	for id, sender := range h.xferSender {
		if sender == name {
			delete(h.xferTarget, id)
			delete(h.xferSender, id)
		}
	}
}

func (h *Hub) send(logger *slog.Logger, p *Peer, f wire.Frame) {
	if err := p.WriteFrame(f); err != nil {
		logger.Warn("hub: write failed", "to", p.Name(), "error", err)
	}
}

func (h *Hub) broadcastExcept(logger *slog.Logger, from *Peer, f wire.Frame) {
	for _, p := range h.peers.Snapshot() {
		if p == from {
			continue
		}
		h.send(logger, p, f)
	}
}
