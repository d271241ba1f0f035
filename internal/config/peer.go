// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PeerConfig is the full YAML configuration for the peer endpoint.
type PeerConfig struct {
	Peer      PeerInfo     `yaml:"peer"`
	Discovery Discovery    `yaml:"discovery"`
	Transfer  TransferInfo `yaml:"transfer"`
	Logging   LoggingInfo  `yaml:"logging"`
}

// PeerInfo identifies this peer and the hub it connects to.
type PeerInfo struct {
	Name    string `yaml:"name"`
	HubAddr string `yaml:"hub_addr"` // "host:5557"; empty means discover one
	SaveDir string `yaml:"save_dir"` // default: "./downloads"
}

// TransferInfo configures outbound file-transfer behavior.
type TransferInfo struct {
	Compression  string        `yaml:"compression"`   // "zstd" (default), "gzip", or "none"
	RateLimit    string        `yaml:"rate_limit"`     // e.g. "2mb"; empty disables throttling
	RateLimitRaw int64         `yaml:"-"`
	ScanInterval time.Duration `yaml:"scan_interval"` // discovery scan poll cadence, default: 1s
}

// LoadPeerConfig reads and validates a peer YAML config file.
func LoadPeerConfig(path string) (*PeerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading peer config: %w", err)
	}

	var cfg PeerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing peer config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating peer config: %w", err)
	}

	return &cfg, nil
}

func (c *PeerConfig) validate() error {
	if c.Peer.Name == "" {
		return fmt.Errorf("peer.name is required")
	}
	if c.Peer.SaveDir == "" {
		c.Peer.SaveDir = "./downloads"
	}
	if c.Discovery.UDPPort <= 0 {
		c.Discovery.UDPPort = DefaultDiscoveryPort
	}
	if c.Transfer.ScanInterval <= 0 {
		c.Transfer.ScanInterval = 1 * time.Second
	}
	switch c.Transfer.Compression {
	case "":
		c.Transfer.Compression = "zstd"
	case "zstd", "gzip", "none":
	default:
		return fmt.Errorf("transfer.compression must be one of zstd, gzip, none, got %q", c.Transfer.Compression)
	}
	if c.Transfer.RateLimit != "" {
		parsed, err := ParseByteSize(c.Transfer.RateLimit)
		if err != nil {
			return fmt.Errorf("transfer.rate_limit: %w", err)
		}
		c.Transfer.RateLimitRaw = parsed
	}
	c.Logging.setDefaults()
	return nil
}
