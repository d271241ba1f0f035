// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package hub

import (
	"github.com/robfig/cron/v3"
)

// startHousekeeping schedules the periodic stats log line an operator
// watches on a long-running hub, every 10 seconds via a fixed cron
// spec ("@every 10s") rather than a bare ticker. Grounded on
// the teacher's cron.New/AddFunc scheduler, simplified to one
// recurring job instead of one per configured entry.
func (h *Hub) startHousekeeping() *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@every 10s", func() {
		snap, err := h.Health()
		if err != nil {
			h.logger.Warn("hub: health snapshot incomplete", "error", err)
		}
		h.logger.Info("hub: status",
			"peers", snap.PeerCount,
			"disk_used_percent", snap.DiskUsagePercent,
			"load1", snap.LoadAverage,
		)
	})
	if err != nil {
		h.logger.Error("hub: scheduling housekeeping job", "error", err)
		return c
	}
	c.Start()
	return c
}
