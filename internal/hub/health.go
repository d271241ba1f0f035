// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package hub

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
)

// HealthSnapshot reports host-level diagnostics through the control
// surface (§6's abstract health call), not the wire protocol. Sourced
// the same way as the teacher's SystemMonitor: disk usage of the hub
// host's root filesystem ("/"), and 1-minute load average.
type HealthSnapshot struct {
	PeerCount        int
	DiskUsagePercent float64
	LoadAverage      float64
}

// Health collects a fresh HealthSnapshot. Disk and load errors are not
// fatal; the corresponding field is left zero and the error returned
// so a caller can decide whether to log it.
func (h *Hub) Health() (HealthSnapshot, error) {
	snap := HealthSnapshot{PeerCount: h.peers.Len()}

	var firstErr error
	if d, err := disk.Usage("/"); err == nil {
		snap.DiskUsagePercent = d.UsedPercent
	} else {
		firstErr = err
	}

	if l, err := load.Avg(); err == nil {
		snap.LoadAverage = l.Load1
	} else if firstErr == nil {
		firstErr = err
	}

	return snap, firstErr
}
