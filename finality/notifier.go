package finality

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finlabs/ffg/storage"
	"github.com/finlabs/ffg/types"
)

// Notifier delivers finalization notices to the external storage
// collaborator. The engine calls it exactly once per newly finalized
// checkpoint; the deterministic correlation id makes any redelivery
// idempotent on the receiving side.
type Notifier struct {
	store  storage.Store
	logger *slog.Logger
}

// NewNotifier creates a notifier over the storage port.
func NewNotifier(store storage.Store, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{store: store, logger: logger}
}

// BuildRequest constructs the outbound notice for a finalized checkpoint.
func BuildRequest(finalized *types.Checkpoint, proof *types.FinalityProof) (*types.MarkFinalizedRequest, error) {
	correlationID, err := types.CorrelationID(finalized.ID())
	if err != nil {
		return nil, fmt.Errorf("correlation id: %w", err)
	}
	return &types.MarkFinalizedRequest{
		CorrelationID:  correlationID,
		BlockHash:      finalized.Root,
		BlockHeight:    finalized.Height,
		FinalizedEpoch: finalized.Epoch,
		Proof:          *proof,
	}, nil
}

// NotifyFinalized builds and delivers the notice. A delivery failure is
// reported to the caller but the finalization fact already committed to the
// ledger stands; the caller may redeliver with Redeliver.
func (n *Notifier) NotifyFinalized(ctx context.Context, finalized *types.Checkpoint, proof *types.FinalityProof) (*types.MarkFinalizedRequest, error) {
	req, err := BuildRequest(finalized, proof)
	if err != nil {
		return nil, err
	}
	if err := n.store.MarkFinalized(ctx, req); err != nil {
		n.logger.Error("finalization notice delivery failed",
			"height", req.BlockHeight,
			"epoch", req.FinalizedEpoch,
			"error", err,
		)
		return req, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	n.logger.Debug("finalization notice delivered",
		"height", req.BlockHeight,
		"correlation_id", req.CorrelationID.Short(),
	)
	return req, nil
}

// Redeliver resends a previously built notice. Safe to repeat: the
// correlation id is unchanged.
func (n *Notifier) Redeliver(ctx context.Context, req *types.MarkFinalizedRequest) error {
	if err := n.store.MarkFinalized(ctx, req); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
