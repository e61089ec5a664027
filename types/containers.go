package types

import (
	"github.com/OffchainLabs/go-bitfield"
)

// CheckpointID references a checkpoint by epoch and block root, as carried
// inside attestations.
type CheckpointID struct {
	Epoch Epoch
	Root  Root
}

// Checkpoint is a ledger entry at an epoch boundary: a candidate finality
// point. State is mutated only by the finality engine, strictly forward.
type Checkpoint struct {
	Epoch  Epoch
	Root   Root
	Height Height
	State  CheckpointState
}

// ID returns the checkpoint's reference form.
func (c *Checkpoint) ID() CheckpointID {
	return CheckpointID{Epoch: c.Epoch, Root: c.Root}
}

// AttestationData is the signed portion of an attestation: a vote linking a
// source checkpoint to a target checkpoint.
type AttestationData struct {
	Slot   Slot
	Source CheckpointID
	Target CheckpointID
}

// Attestation is a validator's signed claim that Target descends from Source.
//
// Verified is an upstream hint that the signature was already checked. The
// engine never trusts it: every signature is re-verified against the claimed
// validator's registered key before any stake is counted.
type Attestation struct {
	ValidatorID ValidatorID
	Data        AttestationData
	Signature   Signature
	Verified    bool
}

// AttestationBatch is the inbound message from the upstream consensus
// collaborator. Sender authorization happens at the messaging boundary.
type AttestationBatch struct {
	Attestations []Attestation
	Epoch        Epoch
	Slot         Slot
}

// Validator is a stake-oracle record for one epoch.
type Validator struct {
	ID     ValidatorID
	Pubkey Pubkey
	Stake  Gwei
}

// FinalityProof records the supermajority link that finalized Source: the
// justification of Target at the next consecutive epoch.
type FinalityProof struct {
	Source             CheckpointID
	Target             CheckpointID
	AggregateSignature Signature
	Participation      bitfield.Bitlist
}

// MarkFinalizedRequest is the outbound notice to the storage collaborator.
// CorrelationID is derived from the finalized checkpoint, so redelivery of
// the same finalization carries the same id and is idempotent downstream.
type MarkFinalizedRequest struct {
	CorrelationID  Root
	BlockHash      Root
	BlockHeight    Height
	FinalizedEpoch Epoch
	Proof          FinalityProof
}
