package types

import (
	"bytes"
	"testing"

	"github.com/OffchainLabs/go-bitfield"
)

func TestCheckpoint_HashTreeRoot(t *testing.T) {
	cp := &Checkpoint{
		Epoch:  3,
		Root:   Root{0xaa, 0xbb},
		Height: 96,
	}

	root, err := cp.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot() error = %v", err)
	}
	if root.IsZero() {
		t.Error("HashTreeRoot() returned zero root")
	}

	root2, _ := cp.HashTreeRoot()
	if root != root2 {
		t.Error("HashTreeRoot() not deterministic")
	}

	// State must not affect identity.
	cp2 := *cp
	cp2.State = Finalized
	root3, _ := cp2.HashTreeRoot()
	if root != root3 {
		t.Error("checkpoint identity changed with state")
	}

	cp3 := *cp
	cp3.Epoch = 4
	root4, _ := cp3.HashTreeRoot()
	if root == root4 {
		t.Error("distinct checkpoints hash equal")
	}
}

func TestAttestationData_SigningRoot(t *testing.T) {
	data := AttestationData{
		Slot:   17,
		Source: CheckpointID{Epoch: 1, Root: Root{0x01}},
		Target: CheckpointID{Epoch: 2, Root: Root{0x02}},
	}

	root, err := data.SigningRoot()
	if err != nil {
		t.Fatalf("SigningRoot() error = %v", err)
	}
	if root.IsZero() {
		t.Error("SigningRoot() returned zero root")
	}

	// A different target must produce a different message.
	other := data
	other.Target.Root = Root{0x03}
	otherRoot, _ := other.SigningRoot()
	if root == otherRoot {
		t.Error("different targets produced the same signing root")
	}
}

func TestCorrelationID_Stable(t *testing.T) {
	finalized := CheckpointID{Epoch: 5, Root: Root{0xfe}}

	id1, err := CorrelationID(finalized)
	if err != nil {
		t.Fatalf("CorrelationID() error = %v", err)
	}
	id2, _ := CorrelationID(finalized)
	if id1 != id2 {
		t.Error("correlation id not stable across calls")
	}

	otherID, _ := CorrelationID(CheckpointID{Epoch: 6, Root: Root{0xfe}})
	if id1 == otherID {
		t.Error("distinct finalizations share a correlation id")
	}
}

func TestAttestationBatch_WireRoundTrip(t *testing.T) {
	batch := &AttestationBatch{
		Epoch: 2,
		Slot:  70,
		Attestations: []Attestation{
			{
				ValidatorID: 9,
				Data: AttestationData{
					Slot:   70,
					Source: CheckpointID{Epoch: 1, Root: Root{0x11}},
					Target: CheckpointID{Epoch: 2, Root: Root{0x22}},
				},
				Signature: Signature{0x33},
			},
		},
	}

	data, err := batch.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ() error = %v", err)
	}

	var decoded AttestationBatch
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("UnmarshalSSZ() error = %v", err)
	}

	if decoded.Epoch != batch.Epoch || decoded.Slot != batch.Slot {
		t.Errorf("header mismatch: got epoch=%d slot=%d", decoded.Epoch, decoded.Slot)
	}
	if len(decoded.Attestations) != 1 {
		t.Fatalf("attestation count = %d, want 1", len(decoded.Attestations))
	}
	if decoded.Attestations[0] != batch.Attestations[0] {
		t.Error("attestation did not round-trip")
	}

	if err := decoded.UnmarshalSSZ(data[:10]); err == nil {
		t.Error("UnmarshalSSZ accepted a truncated batch")
	}
}

func TestFinalityProof_WireRoundTrip(t *testing.T) {
	participation := bitfield.NewBitlist(100)
	participation.SetBitAt(3, true)
	participation.SetBitAt(66, true)

	proof := &FinalityProof{
		Source:             CheckpointID{Epoch: 1, Root: Root{0x01}},
		Target:             CheckpointID{Epoch: 2, Root: Root{0x02}},
		AggregateSignature: Signature{0xab},
		Participation:      participation,
	}

	data, err := proof.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ() error = %v", err)
	}

	var decoded FinalityProof
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("UnmarshalSSZ() error = %v", err)
	}
	if decoded.Source != proof.Source || decoded.Target != proof.Target {
		t.Error("checkpoint refs did not round-trip")
	}
	if !bytes.Equal(decoded.Participation, proof.Participation) {
		t.Error("participation bitlist did not round-trip")
	}
}
