package networking

import (
	"context"
	"errors"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/finlabs/ffg/types"
)

func encodedBatch(t *testing.T) []byte {
	t.Helper()
	batch := &types.AttestationBatch{
		Epoch: 1,
		Slot:  33,
		Attestations: []types.Attestation{
			{
				ValidatorID: 7,
				Data: types.AttestationData{
					Slot:   33,
					Source: types.CheckpointID{Epoch: 0, Root: types.Root{0xa0}},
					Target: types.CheckpointID{Epoch: 1, Root: types.Root{0xa1}},
				},
			},
		},
	}
	data, err := batch.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return CompressMessage(data)
}

func TestHandleBatchMessage(t *testing.T) {
	var received *types.AttestationBatch
	h := &MessageHandlers{
		OnBatch: func(ctx context.Context, batch *types.AttestationBatch, from peer.ID) error {
			received = batch
			return nil
		},
	}

	if err := h.HandleBatchMessage(context.Background(), encodedBatch(t), peer.ID("upstream")); err != nil {
		t.Fatalf("HandleBatchMessage() error = %v", err)
	}
	if received == nil || received.Epoch != 1 || len(received.Attestations) != 1 {
		t.Fatalf("batch not dispatched: %+v", received)
	}
	if received.Attestations[0].ValidatorID != 7 {
		t.Errorf("attestation did not survive the wire: %+v", received.Attestations[0])
	}
}

func TestHandleBatchMessage_UnauthorizedSender(t *testing.T) {
	called := false
	h := &MessageHandlers{
		OnBatch: func(ctx context.Context, batch *types.AttestationBatch, from peer.ID) error {
			called = true
			return nil
		},
		AllowedSenders: map[peer.ID]struct{}{
			peer.ID("upstream"): {},
		},
	}

	err := h.HandleBatchMessage(context.Background(), encodedBatch(t), peer.ID("stranger"))
	if !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("error = %v, want ErrUnauthorizedSender", err)
	}
	if called {
		t.Error("handler invoked for unauthorized sender")
	}

	if err := h.HandleBatchMessage(context.Background(), encodedBatch(t), peer.ID("upstream")); err != nil {
		t.Errorf("authorized sender rejected: %v", err)
	}
	if !called {
		t.Error("handler not invoked for authorized sender")
	}
}

func TestHandleBatchMessage_BadPayload(t *testing.T) {
	h := &MessageHandlers{}

	if err := h.HandleBatchMessage(context.Background(), []byte{0xff, 0x00, 0x01}, peer.ID("upstream")); err == nil {
		t.Error("corrupt snappy payload accepted")
	}

	// Valid snappy framing around a truncated batch.
	if err := h.HandleBatchMessage(context.Background(), CompressMessage([]byte{0x01, 0x02}), peer.ID("upstream")); err == nil {
		t.Error("truncated batch accepted")
	}
}
