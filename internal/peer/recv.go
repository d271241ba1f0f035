// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package peer

import (
	"errors"
	"io"

	"github.com/meshwave/meshwave-go/internal/wire"
	"github.com/meshwave/meshwave-go/internal/xfer"
)

// recvLoop is the single cooperative worker reading frames off the
// connection in order, per the peer endpoint's receive-loop contract.
func (c *Client) recvLoop() {
	defer c.wg.Done()
	defer func() {
		if c.connected.CompareAndSwap(true, false) {
			c.events.Push(ChatEvent{Kind: EventDisconnected})
		}
	}()

	for {
		frame, err := wire.ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, wire.ErrPayloadTooLarge) {
				c.logger.Warn("peer: discarding oversized frame", "error", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("peer: receive loop ending", "error", err)
			}
			return
		}

		switch frame.Type {
		case wire.MsgChat:
			c.handleChat(frame)
		case wire.MsgFileMeta:
			c.handleFileMeta(frame)
		case wire.MsgFileChunk:
			c.handleFileChunk(frame)
		case wire.MsgFileAck:
			if c.awaitingMetaAck.CompareAndSwap(true, false) {
				// reply to FILE_META: the sender never waits on this,
				// so it is not routed to the transfer at all.
				continue
			}
			c.xfer.DeliverAck(c.currentSendID.Load(), xfer.AckEvent{Seq: frame.Seq, Kind: xfer.AckChunk})
		case wire.MsgFileNack:
			c.xfer.DeliverAck(c.currentSendID.Load(), xfer.AckEvent{Seq: frame.Seq, Kind: xfer.NackChunk})
		case wire.MsgPause:
			c.handlePauseResume(frame, true)
		case wire.MsgResume:
			c.handlePauseResume(frame, false)
		case wire.MsgHello, wire.MsgBye:
			// the peer endpoint never receives these once connected; ignore
		default:
			c.logger.Debug("peer: discarding unknown frame", "type", frame.Type)
		}
	}
}

func (c *Client) handleChat(frame *wire.Frame) {
	from, text, err := wire.DecodeChat(frame.Payload)
	if err != nil {
		c.logger.Debug("peer: discarding malformed chat frame", "error", err)
		return
	}
	c.events.Push(ChatEvent{Kind: EventChat, From: from, Text: text})
}

// handleFileMeta stashes the announced transfer rather than registering
// it: META carries no transfer id, only the first FILE_CHUNK does (the
// sender's own id, prefixed to the chunk payload), so registration is
// deferred until that id is known. Only one META may be outstanding at
// a time per connection, mirroring the single-outbound-transfer
// constraint on the send side.
func (c *Client) handleFileMeta(frame *wire.Frame) {
	meta, err := wire.DecodeFileMeta(frame.Payload)
	if err != nil {
		c.logger.Debug("peer: discarding malformed file_meta frame", "error", err)
		return
	}

	c.pendingMetaMu.Lock()
	c.pendingMeta = &pendingMeta{
		basename:    meta.Basename,
		totalChunks: meta.TotalChunks,
		fileSize:    meta.FileSize,
		compression: meta.Compression,
	}
	c.pendingMetaMu.Unlock()

	// An ACK MUST be sent in response to a valid META, empty seq.
	if err := c.WriteFrame(wire.Frame{Type: wire.MsgFileAck, Seq: 0}); err != nil {
		c.logger.Warn("peer: failed to ack file_meta", "error", err)
	}
}

func (c *Client) handleFileChunk(frame *wire.Frame) {
	id, data, err := wire.DecodeFileChunk(frame.Payload)
	if err != nil {
		c.logger.Debug("peer: discarding malformed file_chunk frame", "error", err)
		return
	}

	if _, ok := c.xfer.Find(int32(id)); !ok {
		c.bindPendingMeta(int32(id))
	}

	ack, _, err := c.xfer.ReceiveChunk(int32(id), frame.Seq, data)
	if err != nil {
		c.logger.Debug("peer: chunk rejected", "xfer", id, "seq", frame.Seq, "error", err)
	}

	replyType := wire.MsgFileNack
	if ack {
		replyType = wire.MsgFileAck
	}
	if werr := c.WriteFrame(wire.Frame{Type: replyType, Seq: frame.Seq}); werr != nil {
		c.logger.Warn("peer: failed to reply to chunk", "error", werr)
	}
}

// bindPendingMeta registers the transfer held by the last FILE_META
// under id, the id the sender attached to its first FILE_CHUNK.
func (c *Client) bindPendingMeta(id int32) {
	c.pendingMetaMu.Lock()
	pm := c.pendingMeta
	c.pendingMeta = nil
	c.pendingMetaMu.Unlock()

	if pm == nil {
		return
	}
	if _, err := c.xfer.ReceiveMeta(id, "", pm.basename, pm.totalChunks, int64(pm.fileSize), pm.compression, c.saveDir); err != nil {
		c.logger.Error("peer: rejecting file_meta", "id", id, "error", err)
	}
}

// handlePauseResume applies a remote PAUSE/RESUME to the named
// transfer. seq carries the transfer id for these two message types.
func (c *Client) handlePauseResume(frame *wire.Frame, pause bool) {
	id := int32(frame.Seq)
	t, ok := c.xfer.Find(id)
	if !ok {
		return
	}
	if pause {
		t.Pause()
		c.xfer.DeliverAck(id, xfer.AckEvent{Kind: xfer.PauseRequested})
	} else {
		t.Resume()
	}
}
