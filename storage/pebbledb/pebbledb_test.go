package pebbledb

import (
	"context"
	"testing"

	"github.com/OffchainLabs/go-bitfield"

	"github.com/finlabs/ffg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func request(height types.Height, correlation byte) *types.MarkFinalizedRequest {
	return &types.MarkFinalizedRequest{
		CorrelationID:  types.Root{correlation},
		BlockHash:      types.Root{0xaa},
		BlockHeight:    height,
		FinalizedEpoch: types.Epoch(uint64(height) / 32),
		Proof: types.FinalityProof{
			Participation: bitfield.NewBitlist(8),
		},
	}
}

func TestStore_MarkFinalizedRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.MarkFinalized(ctx, request(32, 0x01)); err != nil {
		t.Fatalf("MarkFinalized() error = %v", err)
	}

	got, ok, err := s.Finalized(ctx, 32)
	if err != nil || !ok {
		t.Fatalf("Finalized() = %v, %v, %v", got, ok, err)
	}
	if got.CorrelationID != (types.Root{0x01}) {
		t.Errorf("correlation id = %v", got.CorrelationID)
	}
	if got.BlockHash != (types.Root{0xaa}) {
		t.Errorf("block hash = %v", got.BlockHash)
	}

	if _, ok, _ := s.Finalized(ctx, 64); ok {
		t.Error("Finalized() reported an unrecorded height")
	}
}

func TestStore_IdempotentRedelivery(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	req := request(32, 0x01)
	for i := 0; i < 3; i++ {
		if err := s.MarkFinalized(ctx, req); err != nil {
			t.Fatalf("redelivery %d error = %v", i, err)
		}
	}

	got, ok, err := s.Finalized(ctx, 32)
	if err != nil || !ok {
		t.Fatalf("Finalized() = %v, %v, %v", got, ok, err)
	}
	if got.CorrelationID != req.CorrelationID {
		t.Errorf("correlation id = %v, want %v", got.CorrelationID, req.CorrelationID)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.MarkFinalized(ctx, request(32, 0x01)); err == nil {
		t.Error("MarkFinalized() accepted a cancelled context")
	}
	if _, _, err := s.Finalized(ctx, 32); err == nil {
		t.Error("Finalized() accepted a cancelled context")
	}
}
