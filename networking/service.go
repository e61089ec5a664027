package networking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/finlabs/ffg/types"
)

// Service runs the gossip boundary: it consumes the attestation-batch topic
// and publishes finality proofs.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	logger   *slog.Logger

	batchTopic *pubsub.Topic
	batchSub   *pubsub.Subscription
	proofTopic *pubsub.Topic

	// Upstream peers that failed initial connection, to be retried.
	failedPeers []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig holds configuration for the networking service.
type ServiceConfig struct {
	Host     host.Host
	Handlers *MessageHandlers
	Peers    []peer.AddrInfo
	Logger   *slog.Logger
}

// NewService creates a new networking service.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ps, err := NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	batchTopic, err := ps.Join(AttestationBatchTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join batch topic: %w", err)
	}
	proofTopic, err := ps.Join(FinalityProofTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join proof topic: %w", err)
	}

	batchSub, err := batchTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe batch topic: %w", err)
	}

	svc := &Service{
		host:       cfg.Host,
		pubsub:     ps,
		handlers:   cfg.Handlers,
		logger:     logger,
		batchTopic: batchTopic,
		batchSub:   batchSub,
		proofTopic: proofTopic,
		ctx:        ctx,
		cancel:     cancel,
	}

	// Connect to upstream peers, track failures for retry.
	for _, pi := range cfg.Peers {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.Warn("failed to connect to peer",
				"peer", pi.ID,
				"error", err,
			)
			svc.failedPeers = append(svc.failedPeers, pi)
		} else {
			logger.Info("connected to peer", "peer", pi.ID)
		}
	}

	return svc, nil
}

// Start launches the subscription loops.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.processBatches()

	if len(s.failedPeers) > 0 {
		s.wg.Add(1)
		go s.retryPeers()
	}

	s.logger.Info("networking service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

// Stop shuts down the networking service.
func (s *Service) Stop() {
	s.cancel()
	s.batchSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// PublishFinalityProof announces a finality proof to the network.
func (s *Service) PublishFinalityProof(ctx context.Context, proof *types.FinalityProof) error {
	data, err := proof.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	return s.proofTopic.Publish(ctx, CompressMessage(data))
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

const peerRetryInterval = 30 * time.Second

// retryPeers periodically retries connecting to failed upstream peers.
func (s *Service) retryPeers() {
	defer s.wg.Done()

	ticker := time.NewTicker(peerRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedPeers {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					s.logger.Debug("peer reconnect failed", "peer", pi.ID, "error", err)
					remaining = append(remaining, pi)
				} else {
					s.logger.Info("reconnected to peer", "peer", pi.ID)
				}
			}
			s.failedPeers = remaining
			if len(s.failedPeers) == 0 {
				s.logger.Debug("all peers connected, stopping retry")
				return
			}
		}
	}
}

// processBatches handles incoming attestation batch messages.
func (s *Service) processBatches() {
	defer s.wg.Done()

	for {
		msg, err := s.batchSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return // context cancelled
			}
			s.logger.Error("batch subscription error", "error", err)
			continue
		}

		// Skip self-published messages
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}

		if s.handlers != nil {
			if err := s.handlers.HandleBatchMessage(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
				s.logger.Error("handle batch error", "error", err)
			}
		}
	}
}
