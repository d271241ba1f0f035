// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadHubConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
hub:
  name: lab-hub
`)
	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("LoadHubConfig: %v", err)
	}
	if cfg.Hub.Listen != "0.0.0.0:5557" {
		t.Errorf("expected default listen, got %q", cfg.Hub.Listen)
	}
	if cfg.Hub.MaxPeers != DefaultMaxPeers {
		t.Errorf("expected default max_peers %d, got %d", DefaultMaxPeers, cfg.Hub.MaxPeers)
	}
	if cfg.Discovery.UDPPort != DefaultDiscoveryPort {
		t.Errorf("expected default discovery port %d, got %d", DefaultDiscoveryPort, cfg.Discovery.UDPPort)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadHubConfig_RequiresName(t *testing.T) {
	path := writeConfig(t, `
hub:
  listen: "0.0.0.0:5557"
`)
	if _, err := LoadHubConfig(path); err == nil {
		t.Fatal("expected error for missing hub.name")
	}
}

func TestLoadPeerConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
peer:
  name: alice
  hub_addr: "192.168.1.10:5557"
`)
	cfg, err := LoadPeerConfig(path)
	if err != nil {
		t.Fatalf("LoadPeerConfig: %v", err)
	}
	if cfg.Peer.SaveDir != "./downloads" {
		t.Errorf("expected default save_dir, got %q", cfg.Peer.SaveDir)
	}
	if cfg.Discovery.UDPPort != DefaultDiscoveryPort {
		t.Errorf("expected default discovery port, got %d", cfg.Discovery.UDPPort)
	}
	if cfg.Transfer.ScanInterval.String() != "1s" {
		t.Errorf("expected default scan_interval 1s, got %s", cfg.Transfer.ScanInterval)
	}
	if cfg.Transfer.Compression != "zstd" {
		t.Errorf("expected default compression zstd, got %q", cfg.Transfer.Compression)
	}
}

func TestLoadPeerConfig_RejectsUnknownCompression(t *testing.T) {
	path := writeConfig(t, `
peer:
  name: alice
transfer:
  compression: lzma
`)
	if _, err := LoadPeerConfig(path); err == nil {
		t.Fatal("expected error for unknown transfer.compression")
	}
}

func TestLoadPeerConfig_ParsesRateLimit(t *testing.T) {
	path := writeConfig(t, `
peer:
  name: alice
transfer:
  rate_limit: "2mb"
`)
	cfg, err := LoadPeerConfig(path)
	if err != nil {
		t.Fatalf("LoadPeerConfig: %v", err)
	}
	if cfg.Transfer.RateLimitRaw != 2*1024*1024 {
		t.Errorf("expected 2mb parsed, got %d", cfg.Transfer.RateLimitRaw)
	}
}

func TestLoadPeerConfig_RequiresName(t *testing.T) {
	path := writeConfig(t, `
peer:
  hub_addr: "192.168.1.10:5557"
`)
	if _, err := LoadPeerConfig(path); err == nil {
		t.Fatal("expected error for missing peer.name")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"1kb":   1024,
		"2mb":   2 * 1024 * 1024,
		"1gb":   1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseByteSize_RejectsGarbage(t *testing.T) {
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Fatal("expected error for garbage size string")
	}
}
