// Package types defines the primitive and composite types for the finality engine.
package types

import "fmt"

// Primitive types.
type Epoch uint64
type Slot uint64
type Height uint64
type ValidatorID uint64
type Gwei uint64
type Root [32]byte

// Pubkey is a 48-byte validator public key.
type Pubkey [48]byte

// Signature is a 96-byte attestation signature container.
type Signature [96]byte

var ZeroHash = Root{}

func (r Root) IsZero() bool { return r == Root{} }

// Short returns a short hex representation of the root (first 4 bytes).
func (r Root) Short() string {
	return fmt.Sprintf("%x", r[:4])
}

// CheckpointState is the finality state of a checkpoint. It only ever
// advances: Pending -> Justified -> Finalized.
type CheckpointState uint8

const (
	Pending CheckpointState = iota
	Justified
	Finalized
)

func (s CheckpointState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Justified:
		return "justified"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EpochAtHeight returns the epoch a block height belongs to.
func EpochAtHeight(height Height, epochLength uint64) Epoch {
	return Epoch(uint64(height) / epochLength)
}

// IsEpochBoundary reports whether a block height starts a new epoch.
func IsEpochBoundary(height Height, epochLength uint64) bool {
	return uint64(height)%epochLength == 0
}
