// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Package peer implements the client-side endpoint: a TCP session to a
// hub, chat send/receive, file transfer dispatch, and the event queue
// an external presentation layer polls.
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/meshwave/meshwave-go/internal/wire"
	"github.com/meshwave/meshwave-go/internal/xfer"
)

// Client holds one TCP session to a hub, a receive worker, and the
// transfer engine driving any in-flight file transfers.
type Client struct {
	name    string
	saveDir string
	logger  *slog.Logger

	conn    net.Conn
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connected atomic.Bool

	events *EventQueue
	xfer   *xfer.Engine

	// The wire format's FILE_ACK/FILE_NACK carry only a chunk seq, no
	// transfer id, so at most one outbound transfer can be awaiting
	// acks on a connection at a time; currentSendID tracks which.
	currentSendID atomic.Int32
	sendSlot      atomic.Bool

	// The receiver's reply to FILE_META reuses FILE_ACK with Seq 0, the
	// same shape as an ack for chunk 0, and the sender never waits on
	// it. awaitingMetaAck discards exactly that one reply instead of
	// routing it into the outbound transfer's ack channel.
	awaitingMetaAck atomic.Bool

	// FILE_META carries no transfer id of its own (the sender assigns
	// one, but it's only ever seen on the wire prefixed to the first
	// FILE_CHUNK), so the meta is held here until that chunk arrives
	// and supplies the id to register the transfer under.
	pendingMetaMu sync.Mutex
	pendingMeta   *pendingMeta
}

type pendingMeta struct {
	basename    string
	totalChunks uint32
	fileSize    uint64
	compression wire.CompressionMode
}

// Dial connects to a hub at addr, sends HELLO with name, and starts
// the receive worker. saveDir is where inbound files are written.
func Dial(addr, name, saveDir string, logger *slog.Logger) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: connect to %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		name:    name,
		saveDir: saveDir,
		logger:  logger,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		events:  NewEventQueue(EventQueueSize),
	}
	c.xfer = xfer.NewEngine(logger, c.onXferEvent)

	if err := c.WriteFrame(wire.Frame{Type: wire.MsgHello, Payload: []byte(name)}); err != nil {
		conn.Close()
		cancel()
		return nil, fmt.Errorf("peer: hello: %w", err)
	}

	c.connected.Store(true)
	logger.Info("peer: connected", "addr", addr, "name", name)

	c.wg.Add(1)
	go c.recvLoop()

	return c, nil
}

// EventQueueSize is the default capacity of a Client's event queue.
const EventQueueSize = 256

// WriteFrame serializes concurrent writers (the receive loop's
// ACK/NACK replies and any sender goroutine's chunk frames) onto the
// one underlying connection. Satisfies xfer.FrameWriter.
func (c *Client) WriteFrame(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.conn, f)
}

// IsConnected reports whether the session is currently live.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Username returns the name this client identified with.
func (c *Client) Username() string {
	return c.name
}

// Disconnect sends BYE best-effort, closes the socket, and waits for
// the receive worker to exit.
func (c *Client) Disconnect() {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	_ = c.WriteFrame(wire.Frame{Type: wire.MsgBye})
	c.cancel()
	c.conn.Close()
	c.wg.Wait()
	c.logger.Info("peer: disconnected")
}

// SendChat sends a chat frame addressed to recipient. An empty
// recipient is rejected even though the wire grammar can represent it,
// per the peer-side validation the protocol leaves to this layer.
func (c *Client) SendChat(recipient, text string) error {
	if !c.connected.Load() {
		return fmt.Errorf("peer: not connected")
	}
	if recipient == "" {
		return fmt.Errorf("peer: recipient must not be empty")
	}

	payload := wire.EncodeChat(recipient, text)
	if len(payload) > wire.MaxChatPayload {
		return fmt.Errorf("peer: chat payload too large (%d > %d)", len(payload), wire.MaxChatPayload)
	}

	return c.WriteFrame(wire.Frame{Type: wire.MsgChat, Payload: payload})
}

// SendFile starts sending filePath to recipient. Only one outbound
// transfer may be in flight at a time on a given connection (see
// currentSendID).
func (c *Client) SendFile(filePath, recipient string, opts xfer.SendOptions) (*xfer.Transfer, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("peer: not connected")
	}
	if !c.sendSlot.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("peer: a file transfer is already in progress on this connection")
	}

	opts.OnRegistered = func(id int32) {
		c.currentSendID.Store(id)
		c.awaitingMetaAck.Store(true)
	}

	t, err := c.xfer.SendFile(c.ctx, c, recipient, filePath, opts)
	if err != nil {
		c.sendSlot.Store(false)
		return nil, err
	}
	return t, nil
}

// PauseTransfer pauses xfer id locally and, best-effort, notifies the
// remote side so it stops sending chunks. seq carries the transfer id
// for PAUSE frames, per the wire grammar's documented convention.
func (c *Client) PauseTransfer(id int32) error {
	t, ok := c.xfer.Find(id)
	if !ok {
		return fmt.Errorf("peer: unknown transfer %d", id)
	}
	if !t.Pause() {
		return fmt.Errorf("peer: transfer %d is not active", id)
	}
	return c.WriteFrame(wire.Frame{Type: wire.MsgPause, Seq: uint32(id)})
}

// ResumeTransfer resumes xfer id and notifies the remote side.
func (c *Client) ResumeTransfer(id int32) error {
	t, ok := c.xfer.Find(id)
	if !ok {
		return fmt.Errorf("peer: unknown transfer %d", id)
	}
	if !t.Resume() {
		return fmt.Errorf("peer: transfer %d is not paused", id)
	}
	return c.WriteFrame(wire.Frame{Type: wire.MsgResume, Seq: uint32(id)})
}

// PollEvent removes and returns the oldest queued event, if any.
func (c *Client) PollEvent() (ChatEvent, bool) {
	return c.events.Poll()
}

// Transfers returns a snapshot of every transfer this client knows
// about, inbound or outbound.
func (c *Client) Transfers() []*xfer.Transfer {
	return c.xfer.All()
}

func (c *Client) onXferEvent(id int32, state xfer.State, done, total uint32) {
	c.events.Push(ChatEvent{
		Kind:       EventTransferUpdate,
		TransferID: id,
		State:      state.String(),
		Done:       done,
		Total:      total,
	})

	if state != xfer.StateDone && state != xfer.StateError {
		return
	}
	if c.currentSendID.CompareAndSwap(id, 0) {
		c.sendSlot.Store(false)
	}
}
