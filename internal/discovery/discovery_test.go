// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package discovery

import (
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestScanner_UpsertInsertsNewServer(t *testing.T) {
	s := NewScanner(0, testLogger())

	s.upsert("lab", "192.168.1.10", 5557)

	got := s.Servers()
	if len(got) != 1 {
		t.Fatalf("expected 1 server, got %d", len(got))
	}
	if got[0] != (ServerInfo{Name: "lab", IP: "192.168.1.10", Port: 5557}) {
		t.Errorf("got %+v", got[0])
	}
}

func TestScanner_UpsertRefreshesExistingByIPPort(t *testing.T) {
	s := NewScanner(0, testLogger())

	s.upsert("lab", "192.168.1.10", 5557)
	s.upsert("lab-renamed", "192.168.1.10", 5557)

	got := s.Servers()
	if len(got) != 1 {
		t.Fatalf("expected 1 server after refresh, got %d", len(got))
	}
	if got[0].Name != "lab-renamed" {
		t.Errorf("expected refreshed name, got %q", got[0].Name)
	}
}

func TestScanner_CapsAt32Entries(t *testing.T) {
	s := NewScanner(0, testLogger())

	for i := 0; i < MaxServers+5; i++ {
		s.upsert("srv", "10.0.0.1", 5557+i)
	}

	if got := len(s.Servers()); got != MaxServers {
		t.Fatalf("expected cap of %d, got %d", MaxServers, got)
	}
}

func TestScanner_EvictsExpiredEntries(t *testing.T) {
	s := NewScanner(0, testLogger())
	s.ExpireAfterOverride(20 * time.Millisecond)

	s.upsert("lab", "192.168.1.10", 5557)
	if len(s.Servers()) != 1 {
		t.Fatalf("expected server present before expiry")
	}

	time.Sleep(30 * time.Millisecond)
	s.evict()

	if got := len(s.Servers()); got != 0 {
		t.Fatalf("expected eviction, got %d entries", got)
	}
}

func TestScanner_NoDuplicateIPPort(t *testing.T) {
	s := NewScanner(0, testLogger())

	for i := 0; i < 5; i++ {
		s.upsert("lab", "192.168.1.10", 5557)
	}

	if got := len(s.Servers()); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
}

func TestScanner_HandleDatagram_RejectsIncompleteBeacons(t *testing.T) {
	s := NewScanner(0, testLogger())

	s.handleDatagram([]byte(`{"name":"lab","ip":"","port":5557,"version":1}`))
	s.handleDatagram([]byte(`{"name":"","ip":"1.2.3.4","port":5557,"version":1}`))
	s.handleDatagram([]byte(`{"name":"lab","ip":"1.2.3.4","port":0,"version":1}`))
	s.handleDatagram([]byte(`not json at all`))

	if got := len(s.Servers()); got != 0 {
		t.Fatalf("expected 0 servers from malformed beacons, got %d", got)
	}
}

func TestScanner_HandleDatagram_TolerantOfExtraKeys(t *testing.T) {
	s := NewScanner(0, testLogger())

	s.handleDatagram([]byte(`  {"name":"lab", "ip":"192.168.1.10", "port":5557, "version":1, "extra":"field"}  `))

	got := s.Servers()
	if len(got) != 1 || got[0].Name != "lab" {
		t.Fatalf("expected tolerant parse, got %+v", got)
	}
}

func TestAnnounceAndScan_EndToEnd(t *testing.T) {
	logger := testLogger()
	const testDiscPort = 18739

	announcer := NewAnnouncer("lab", 5557, testDiscPort, logger)
	announcer.overrideInterval(10 * time.Millisecond)
	if err := announcer.Start(); err != nil {
		t.Fatalf("Announcer.Start: %v", err)
	}
	defer announcer.Stop()

	scanner := NewScanner(testDiscPort, logger)
	if err := scanner.Start(); err != nil {
		t.Fatalf("Scanner.Start: %v", err)
	}
	defer scanner.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if servers := scanner.Servers(); len(servers) == 1 {
			if servers[0].Name != "lab" || servers[0].Port != 5557 {
				t.Fatalf("unexpected server entry: %+v", servers[0])
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for beacon to be discovered")
}
