// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Announcer broadcasts a beacon datagram for one hub every AnnounceInterval
// until stopped. Transmission failures are ignored, per the error-handling
// taxonomy's treatment of best-effort announce traffic.
type Announcer struct {
	name     string
	dataPort int
	discPort int
	logger   *slog.Logger
	interval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAnnouncer builds an Announcer for a hub named name, listening for
// connections on dataPort, broadcasting on discPort.
func NewAnnouncer(name string, dataPort, discPort int, logger *slog.Logger) *Announcer {
	return &Announcer{name: name, dataPort: dataPort, discPort: discPort, logger: logger, interval: AnnounceInterval}
}

// overrideInterval shortens the announce period for tests. Must be called
// before Start.
func (a *Announcer) overrideInterval(d time.Duration) {
	a.interval = d
}

// Start opens the broadcast socket and begins announcing in the background.
// Calling Start twice without an intervening Stop is a no-op.
func (a *Announcer) Start() error {
	if !a.running.CompareAndSwap(false, true) {
		return nil
	}

	lc := net.ListenConfig{Control: broadcastControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		a.running.Store(false)
		return fmt.Errorf("opening announce socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("255.255.255.255:%d", a.discPort))
	if err != nil {
		conn.Close()
		a.running.Store(false)
		return fmt.Errorf("resolving broadcast address: %w", err)
	}

	ip := LocalIPv4()
	a.logger.Info("discovery: announcing", "name", a.name, "ip", ip, "port", a.dataPort)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer conn.Close()
		a.loop(ctx, conn, dst, ip)
	}()

	return nil
}

func (a *Announcer) loop(ctx context.Context, conn net.PacketConn, dst net.Addr, ip string) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	payload, _ := json.Marshal(beacon{
		Name:    a.name,
		IP:      ip,
		Port:    a.dataPort,
		Version: BeaconVersion,
	})

	for {
		if _, err := conn.WriteTo(payload, dst); err != nil {
			a.logger.Debug("discovery: announce send failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the announce loop and waits for it to exit.
func (a *Announcer) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	a.cancel()
	a.wg.Wait()
}
