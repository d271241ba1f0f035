// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Package config loads the YAML configuration for the hub and peer
// endpoints.
package config

// LoggingInfo configures the structured logger shared by both endpoints.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (l *LoggingInfo) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

// Default ports, per the defaults table.
const (
	DefaultDiscoveryPort = 5556
	DefaultDataPort      = 5557
	DefaultDashboardPort = 5558
	DefaultMaxPeers      = 32
)
