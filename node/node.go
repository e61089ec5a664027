// Package node wires the finality engine to its collaborators: the gossip
// boundary, the stake oracle, the storage sink and the clock, plus the
// breaker-driven sync cycle.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/finlabs/ffg/clock"
	"github.com/finlabs/ffg/config"
	"github.com/finlabs/ffg/finality"
	"github.com/finlabs/ffg/networking"
	"github.com/finlabs/ffg/storage"
	"github.com/finlabs/ffg/storage/memory"
	"github.com/finlabs/ffg/storage/pebbledb"
	"github.com/finlabs/ffg/types"
)

type Node struct {
	config *Config
	engine *finality.Engine
	net    *networking.Service
	store  storage.Store
	clock  *clock.EpochClock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Config struct {
	Engine      config.Config
	GenesisTime uint64
	Validators  []types.Validator
	ListenAddrs []string
	Peers       []string
	// AllowedSenders restricts which upstream peers may submit batches.
	// Empty means any connected peer.
	AllowedSenders []peer.ID
	// DataDir enables the pebble-backed finality sink; empty selects the
	// in-memory sink.
	DataDir string
	Logger  *slog.Logger
}

// New creates a node with the given configuration.
func New(ctx context.Context, cfg *Config) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store storage.Store
	var err error
	if cfg.DataDir != "" {
		store, err = pebbledb.Open(cfg.DataDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open finality store: %w", err)
		}
	} else {
		store = memory.New()
	}

	oracle := finality.NewStaticOracle(cfg.Validators)
	engine, err := finality.NewEngine(cfg.Engine, oracle, finality.DevnetVerifier{}, store, logger)
	if err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	node := &Node{
		config: cfg,
		engine: engine,
		store:  store,
		clock:  clock.New(cfg.GenesisTime, cfg.Engine.EpochLength),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	host, err := networking.NewHost(ctx, networking.HostConfig{
		ListenAddrs: cfg.ListenAddrs,
	})
	if err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("create host: %w", err)
	}

	allowed := make(map[peer.ID]struct{}, len(cfg.AllowedSenders))
	for _, id := range cfg.AllowedSenders {
		allowed[id] = struct{}{}
	}

	node.net, err = networking.NewService(ctx, networking.ServiceConfig{
		Host: host,
		Handlers: &networking.MessageHandlers{
			OnBatch:        node.handleBatch,
			AllowedSenders: allowed,
		},
		Peers:  networking.ParsePeers(cfg.Peers),
		Logger: logger,
	})
	if err != nil {
		cancel()
		host.Close()
		store.Close()
		return nil, fmt.Errorf("create networking: %w", err)
	}

	return node, nil
}

// Start launches the networking service and the sync cycle.
func (n *Node) Start() {
	n.net.Start()
	n.wg.Add(1)
	go n.syncLoop()

	n.logger.Info("finality node running",
		"slot", n.clock.CurrentSlot(),
		"epoch", n.clock.CurrentEpoch(),
		"peers", n.net.PeerCount(),
	)
}

// Stop shuts the node down.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	n.net.Stop()
	if err := n.store.Close(); err != nil {
		n.logger.Error("close finality store", "error", err)
	}
}

// handleBatch feeds an authorized gossip batch into the engine and
// announces any resulting finality proofs.
func (n *Node) handleBatch(ctx context.Context, batch *types.AttestationBatch, from peer.ID) error {
	result, err := n.engine.ProcessAttestations(ctx, batch)
	if err != nil {
		return err
	}

	n.logger.Debug("processed attestation batch",
		"from", from,
		"accepted", result.Accepted,
		"rejected", len(result.Rejected),
	)
	for _, ev := range result.Conflicts {
		n.logger.Warn("slashing candidate observed",
			"validator", ev.ValidatorID,
			"source", ev.Source.Root.Short(),
		)
	}

	for _, req := range result.Notices {
		if err := n.net.PublishFinalityProof(ctx, &req.Proof); err != nil {
			n.logger.Warn("publish finality proof", "error", err)
		}
	}
	return nil
}

// ObserveBlock reports chain growth from the block collaborator.
func (n *Node) ObserveBlock(root types.Root, height types.Height) (*types.Checkpoint, error) {
	return n.engine.ObserveBlock(root, height)
}

// Engine exposes the finality engine's query surface.
func (n *Node) Engine() *finality.Engine { return n.engine }

// CurrentSlot returns the clock's current slot.
func (n *Node) CurrentSlot() types.Slot { return n.clock.CurrentSlot() }

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int { return n.net.PeerCount() }

// syncLoop drives bounded recovery attempts while the breaker is syncing.
// Each attempt is cut off at the configured sync timeout; halting is left
// to the breaker and surfaced through the engine state.
func (n *Node) syncLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(time.Duration(clock.SecondsPerSlot) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.engine.State().Phase != finality.PhaseSyncing {
				continue
			}
			ctx, cancel := context.WithTimeout(n.ctx, n.config.Engine.SyncTimeout)
			state, err := n.engine.Resync(ctx)
			cancel()
			if err != nil {
				n.logger.Warn("sync attempt failed", "state", state, "error", err)
			} else {
				n.logger.Info("sync attempt finished", "state", state)
			}
			if state.Phase == finality.PhaseHalted {
				n.logger.Error("finality halted, manual intervention required",
					"finality_lag", n.engine.FinalityLag(),
				)
			}
		}
	}
}
