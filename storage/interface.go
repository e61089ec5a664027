// Package storage defines the outbound port to the external storage
// collaborator that records finalized blocks.
package storage

import (
	"context"

	"github.com/finlabs/ffg/types"
)

// Store receives finalization notices. Implementations must be idempotent:
// redelivery of a notice with the same correlation id is a no-op.
type Store interface {
	MarkFinalized(ctx context.Context, req *types.MarkFinalizedRequest) error
	// Finalized returns the recorded notice for a block height, if any.
	Finalized(ctx context.Context, height types.Height) (*types.MarkFinalizedRequest, bool, error)
	Close() error
}
