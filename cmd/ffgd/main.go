package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/finlabs/ffg/config"
	"github.com/finlabs/ffg/node"
)

func main() {
	var (
		configPath     string
		validatorsPath string
		peersPath      string
		genesisTime    uint64
		listenAddr     string
		allowedSenders string
		dataDir        string
		logLevel       string
	)

	flag.StringVar(&configPath, "config", "", "Engine config yaml (defaults apply when empty)")
	flag.StringVar(&validatorsPath, "validators", "validators.yaml", "Validator registry yaml")
	flag.StringVar(&peersPath, "peers", "", "Upstream peers yaml")
	flag.Uint64Var(&genesisTime, "genesis-time", uint64(time.Now().Unix()), "Genesis time (unix timestamp)")
	flag.StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/udp/9100/quic-v1", "Listen address")
	flag.StringVar(&allowedSenders, "allowed-senders", "", "Comma-separated peer IDs allowed to submit batches")
	flag.StringVar(&dataDir, "datadir", "", "Pebble data directory (in-memory sink when empty)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Setup logger
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	engineCfg := config.Default()
	if configPath != "" {
		var err error
		engineCfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	validators, err := config.LoadValidators(validatorsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load validators: %v\n", err)
		os.Exit(1)
	}

	var peers []string
	if peersPath != "" {
		peers, err = config.LoadPeers(peersPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load peers: %v\n", err)
			os.Exit(1)
		}
	}

	var senders []peer.ID
	if allowedSenders != "" {
		for _, raw := range strings.Split(allowedSenders, ",") {
			id, err := peer.Decode(strings.TrimSpace(raw))
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad allowed sender %q: %v\n", raw, err)
				os.Exit(1)
			}
			senders = append(senders, id)
		}
	}

	cfg := &node.Config{
		Engine:         engineCfg,
		GenesisTime:    genesisTime,
		Validators:     validators,
		ListenAddrs:    []string{listenAddr},
		Peers:          peers,
		AllowedSenders: senders,
		DataDir:        dataDir,
		Logger:         logger,
	}

	ctx := context.Background()
	n, err := node.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create node: %v\n", err)
		os.Exit(1)
	}

	n.Start()

	logger.Info("ffg finality engine running",
		"validators", len(validators),
		"epoch_length", engineCfg.EpochLength,
		"peers", n.PeerCount(),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	n.Stop()
}
