package networking

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/finlabs/ffg/types"
)

// ErrUnauthorizedSender rejects batches from peers outside the allowed set.
var ErrUnauthorizedSender = errors.New("unauthorized batch sender")

// BatchHandler processes an authorized attestation batch from gossipsub.
type BatchHandler func(ctx context.Context, batch *types.AttestationBatch, from peer.ID) error

// MessageHandlers decodes and dispatches inbound messages. When
// AllowedSenders is non-empty, batches from any other peer are dropped with
// ErrUnauthorizedSender before decoding.
type MessageHandlers struct {
	OnBatch        BatchHandler
	AllowedSenders map[peer.ID]struct{}
}

// Authorized reports whether a peer may submit attestation batches.
func (h *MessageHandlers) Authorized(from peer.ID) bool {
	if len(h.AllowedSenders) == 0 {
		return true
	}
	_, ok := h.AllowedSenders[from]
	return ok
}

// HandleBatchMessage checks the sender, then decodes and processes an
// incoming attestation batch.
func (h *MessageHandlers) HandleBatchMessage(ctx context.Context, data []byte, from peer.ID) error {
	if !h.Authorized(from) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedSender, from)
	}

	decoded, err := DecompressMessage(data)
	if err != nil {
		return fmt.Errorf("decompress batch: %w", err)
	}

	var batch types.AttestationBatch
	if err := batch.UnmarshalSSZ(decoded); err != nil {
		return fmt.Errorf("unmarshal batch: %w", err)
	}

	if h.OnBatch != nil {
		return h.OnBatch(ctx, &batch, from)
	}
	return nil
}
