// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Package hub implements the hub endpoint: the accept loop, the peer
// table, and message routing between connected peers.
package hub

import (
	"net"
	"sync"

	"github.com/meshwave/meshwave-go/internal/wire"
)

// Peer is one connected session on the hub. Name starts as a
// placeholder and is overwritten once the peer's HELLO arrives.
type Peer struct {
	Conn net.Conn
	Addr string

	mu   sync.Mutex
	name string

	writeMu sync.Mutex
}

func (p *Peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peer) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// WriteFrame serializes concurrent writers: the connection's own read
// loop (replying to what it just routed) and any other peer's routing
// goroutine forwarding a frame to this peer both write through here.
func (p *Peer) WriteFrame(f wire.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return wire.WriteFrame(p.Conn, f)
}

// PeerTable is the hub's connected-peer set. Removal is swap-with-tail,
// matching the original server's peer array compaction; order carries
// no meaning so this is safe.
type PeerTable struct {
	mu    sync.Mutex
	peers []*Peer
}

func NewPeerTable() *PeerTable {
	return &PeerTable{}
}

// Add registers a new connection under a placeholder name, returning
// the Peer handle callers use for the rest of its lifetime.
func (pt *PeerTable) Add(conn net.Conn, placeholderName string) *Peer {
	p := &Peer{Conn: conn, Addr: conn.RemoteAddr().String(), name: placeholderName}
	pt.mu.Lock()
	pt.peers = append(pt.peers, p)
	pt.mu.Unlock()
	return p
}

// Remove drops p from the table. No-op if p isn't present (e.g. called
// twice on the same disconnect).
func (pt *PeerTable) Remove(p *Peer) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for i, q := range pt.peers {
		if q == p {
			last := len(pt.peers) - 1
			pt.peers[i] = pt.peers[last]
			pt.peers[last] = nil
			pt.peers = pt.peers[:last]
			return
		}
	}
}

// Rename applies a HELLO-supplied name to p, truncated to
// wire.MaxNameLength per the protocol's name-length invariant.
func (pt *PeerTable) Rename(p *Peer, name string) {
	if len(name) > wire.MaxNameLength {
		name = name[:wire.MaxNameLength]
	}
	p.setName(name)
}

// FindByName returns the peer currently identified by name, if any.
// Snapshot-then-scan: no lock is held while comparing names, since
// Peer.Name() takes its own lock.
func (pt *PeerTable) FindByName(name string) (*Peer, bool) {
	for _, p := range pt.Snapshot() {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of the current peer list. Callers iterate
// the copy and write to sockets without holding the table's lock,
// matching the broadcast discipline in the original select()-based
// server (lock held only for the copy, not the sends).
func (pt *PeerTable) Snapshot() []*Peer {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]*Peer, len(pt.peers))
	copy(out, pt.peers)
	return out
}

// Len reports the number of connected peers.
func (pt *PeerTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.peers)
}
