// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

// Command meshwave runs either the hub or the peer endpoint, selected by
// -mode, driven by a YAML config file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/meshwave/meshwave-go/internal/config"
	"github.com/meshwave/meshwave-go/internal/discovery"
	"github.com/meshwave/meshwave-go/internal/hub"
	"github.com/meshwave/meshwave-go/internal/logging"
	"github.com/meshwave/meshwave-go/internal/peer"
	"github.com/meshwave/meshwave-go/internal/wire"
	"github.com/meshwave/meshwave-go/internal/xfer"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

func main() {
	mode := flag.String("mode", "", "hub or peer")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received signal %s, shutting down\n", sig)
		cancel()
	}()

	switch *mode {
	case "hub":
		runHub(ctx, *configPath)
	case "peer":
		runPeer(ctx, *configPath)
	default:
		fmt.Fprintln(os.Stderr, `Error: -mode must be "hub" or "peer"`)
		os.Exit(1)
	}
}

func runHub(ctx context.Context, configPath string) {
	cfg, err := config.LoadHubConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Discovery.Enabled {
		dataPort, err := portOf(cfg.Hub.Listen)
		if err != nil {
			logger.Error("hub: parsing listen address", "error", err)
			os.Exit(1)
		}
		announcer := discovery.NewAnnouncer(cfg.Hub.Name, dataPort, cfg.Discovery.UDPPort, logger)
		if err := announcer.Start(); err != nil {
			logger.Error("hub: starting discovery announcer", "error", err)
			os.Exit(1)
		}
		defer announcer.Stop()
	}

	h := hub.NewWithMaxPeers(logger, cfg.Hub.MaxPeers)
	if err := h.Run(ctx, cfg.Hub.Listen); err != nil {
		logger.Error("hub exited", "error", err)
		os.Exit(1)
	}
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func runPeer(ctx context.Context, configPath string) {
	cfg, err := config.LoadPeerConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := os.MkdirAll(cfg.Peer.SaveDir, 0o755); err != nil {
		logger.Error("peer: creating save dir", "error", err)
		os.Exit(1)
	}

	hubAddr := cfg.Peer.HubAddr
	if hubAddr == "" {
		hubAddr = discoverHub(ctx, cfg, logger)
		if hubAddr == "" {
			return // ctx canceled while searching
		}
	}

	client, err := peer.Dial(hubAddr, cfg.Peer.Name, cfg.Peer.SaveDir, logger)
	if err != nil {
		logger.Error("peer: connecting to hub", "error", err, "addr", hubAddr)
		os.Exit(1)
	}
	defer client.Disconnect()
	fmt.Printf("Connected to %s as %s. Type /help for commands.\n", hubAddr, cfg.Peer.Name)

	go pumpEvents(ctx, client)
	runREPL(ctx, client, cfg)
}

func discoverHub(ctx context.Context, cfg *config.PeerConfig, logger *slog.Logger) string {
	scanner := discovery.NewScanner(cfg.Discovery.UDPPort, logger)
	if err := scanner.Start(); err != nil {
		logger.Error("peer: starting discovery scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Stop()

	fmt.Println("Searching for a hub on the LAN...")
	ticker := time.NewTicker(cfg.Transfer.ScanInterval)
	defer ticker.Stop()

	for {
		if servers := scanner.Servers(); len(servers) > 0 {
			s := servers[0]
			fmt.Printf("Found hub %q at %s:%d\n", s.Name, s.IP, s.Port)
			return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
		}
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
		}
	}
}

// pumpEvents drains the client's event queue, printing chat messages
// and driving a progress bar per active transfer.
func pumpEvents(ctx context.Context, client *peer.Client) {
	bars := make(map[int32]*progressbar.ProgressBar)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := client.PollEvent()
		if !ok {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		switch ev.Kind {
		case peer.EventChat:
			fmt.Printf("\n[%s] %s\n> ", ev.From, ev.Text)
		case peer.EventTransferUpdate:
			bar, ok := bars[ev.TransferID]
			if !ok {
				bar = progressbar.NewOptions(int(ev.Total),
					progressbar.OptionSetDescription(fmt.Sprintf("transfer %d", ev.TransferID)),
					progressbar.OptionSetWidth(30),
				)
				bars[ev.TransferID] = bar
			}
			bar.Set(int(ev.Done))
			if ev.State == xfer.StateDone.String() || ev.State == xfer.StateError.String() {
				fmt.Println()
				delete(bars, ev.TransferID)
			}
		case peer.EventDisconnected:
			fmt.Println("\nDisconnected from hub.")
			return
		}
	}
}

const replHelp = `Commands:
  /send <recipient> <path>   send a file
  /pause <id>                pause an in-flight transfer
  /resume <id>                resume a paused transfer
  /transfers                  list known transfers
  /quit                        disconnect and exit
  <recipient> <message>      send a chat message
`

func runREPL(ctx context.Context, client *peer.Client, cfg *config.PeerConfig) {
	var limiter *rate.Limiter
	if cfg.Transfer.RateLimitRaw > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Transfer.RateLimitRaw), int(cfg.Transfer.RateLimitRaw))
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		switch {
		case line == "/help":
			fmt.Print(replHelp)
		case line == "/quit":
			return
		case line == "/transfers":
			for _, t := range client.Transfers() {
				done, total := t.Progress()
				fmt.Printf("  #%d (%s) %s -> %s [%s] %d/%d\n", t.ID, t.CorrelationID, t.Peer, t.Filename, t.State(), done, total)
			}
		case strings.HasPrefix(line, "/send "):
			handleSend(client, limiter, compressionMode(cfg.Transfer.Compression), strings.TrimPrefix(line, "/send "))
		case strings.HasPrefix(line, "/pause "):
			handlePauseResume(client, strings.TrimPrefix(line, "/pause "), true)
		case strings.HasPrefix(line, "/resume "):
			handlePauseResume(client, strings.TrimPrefix(line, "/resume "), false)
		case strings.HasPrefix(line, "/"):
			fmt.Println("unknown command, try /help")
		default:
			parts := strings.SplitN(line, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: <recipient> <message>")
				break
			}
			if err := client.SendChat(parts[0], parts[1]); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

func handleSend(client *peer.Client, limiter *rate.Limiter, compression wire.CompressionMode, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		fmt.Println("usage: /send <recipient> <path>")
		return
	}
	recipient, path := parts[0], parts[1]

	t, err := client.SendFile(path, recipient, xfer.SendOptions{Limiter: limiter, Compression: compression})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("sending transfer #%d to %s\n", t.ID, recipient)
}

// compressionMode maps the config's human-readable setting to the
// wire's compression mode byte.
func compressionMode(s string) wire.CompressionMode {
	switch s {
	case "gzip":
		return wire.CompressionGzip
	case "none":
		return wire.CompressionNone
	default:
		return wire.CompressionZstd
	}
}

func handlePauseResume(client *peer.Client, idStr string, pause bool) {
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil {
		fmt.Println("usage: /pause|/resume <id>")
		return
	}
	if pause {
		err = client.PauseTransfer(int32(id))
	} else {
		err = client.ResumeTransfer(int32(id))
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
