// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HubConfig is the full YAML configuration for the hub endpoint.
type HubConfig struct {
	Hub       HubInfo     `yaml:"hub"`
	Discovery Discovery   `yaml:"discovery"`
	Logging   LoggingInfo `yaml:"logging"`
}

// HubInfo identifies the hub and its data-plane listener.
type HubInfo struct {
	Name     string `yaml:"name"`
	Listen   string `yaml:"listen"`    // default: "0.0.0.0:5557"
	MaxPeers int    `yaml:"max_peers"` // default: 32
}

// Discovery configures the UDP announce beacon.
type Discovery struct {
	Enabled bool `yaml:"enabled"` // default: true
	UDPPort int  `yaml:"udp_port"`
}

// LoadHubConfig reads and validates a hub YAML config file.
func LoadHubConfig(path string) (*HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hub config: %w", err)
	}

	// Pre-set before decoding so an omitted discovery.enabled stays true.
	cfg := HubConfig{Discovery: Discovery{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing hub config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating hub config: %w", err)
	}

	return &cfg, nil
}

func (c *HubConfig) validate() error {
	if c.Hub.Name == "" {
		return fmt.Errorf("hub.name is required")
	}
	if c.Hub.Listen == "" {
		c.Hub.Listen = fmt.Sprintf("0.0.0.0:%d", DefaultDataPort)
	}
	if c.Hub.MaxPeers <= 0 {
		c.Hub.MaxPeers = DefaultMaxPeers
	}
	if c.Discovery.UDPPort <= 0 {
		c.Discovery.UDPPort = DefaultDiscoveryPort
	}
	c.Logging.setDefaults()
	return nil
}
