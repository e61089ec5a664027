package types

import (
	ssz "github.com/ferranbt/fastssz"
)

// Hash-tree-root implementations over the fastssz hasher pool. The layouts
// are fixed by hand rather than generated; each container merkleizes its
// fields in declaration order.

// HashTreeRoot returns the SSZ hash tree root of the checkpoint reference.
func (c CheckpointID) HashTreeRoot() (Root, error) {
	hh := ssz.DefaultHasherPool.Get()
	defer ssz.DefaultHasherPool.Put(hh)

	idx := hh.Index()
	hh.PutUint64(uint64(c.Epoch))
	hh.PutBytes(c.Root[:])
	hh.Merkleize(idx)

	root, err := hh.HashRoot()
	if err != nil {
		return ZeroHash, err
	}
	return Root(root), nil
}

// HashTreeRoot returns the SSZ hash tree root of the ledger checkpoint.
// State is excluded: identity does not change as finality advances.
func (c *Checkpoint) HashTreeRoot() (Root, error) {
	hh := ssz.DefaultHasherPool.Get()
	defer ssz.DefaultHasherPool.Put(hh)

	idx := hh.Index()
	hh.PutUint64(uint64(c.Epoch))
	hh.PutBytes(c.Root[:])
	hh.PutUint64(uint64(c.Height))
	hh.Merkleize(idx)

	root, err := hh.HashRoot()
	if err != nil {
		return ZeroHash, err
	}
	return Root(root), nil
}

// SigningRoot returns the canonical message a validator signs for this vote.
// The aggregator recomputes this for every inbound attestation; upstream
// "already verified" claims are never part of it.
func (d AttestationData) SigningRoot() (Root, error) {
	sourceRoot, err := d.Source.HashTreeRoot()
	if err != nil {
		return ZeroHash, err
	}
	targetRoot, err := d.Target.HashTreeRoot()
	if err != nil {
		return ZeroHash, err
	}

	hh := ssz.DefaultHasherPool.Get()
	defer ssz.DefaultHasherPool.Put(hh)

	idx := hh.Index()
	hh.PutUint64(uint64(d.Slot))
	hh.PutBytes(sourceRoot[:])
	hh.PutBytes(targetRoot[:])
	hh.Merkleize(idx)

	root, err := hh.HashRoot()
	if err != nil {
		return ZeroHash, err
	}
	return Root(root), nil
}

// CorrelationID derives the stable identifier for a finalization notice from
// the finalized checkpoint itself. Re-sending the same finalization always
// produces the same id.
func CorrelationID(finalized CheckpointID) (Root, error) {
	hh := ssz.DefaultHasherPool.Get()
	defer ssz.DefaultHasherPool.Put(hh)

	idx := hh.Index()
	hh.PutBytes([]byte("ffg/mark_finalized"))
	hh.PutUint64(uint64(finalized.Epoch))
	hh.PutBytes(finalized.Root[:])
	hh.Merkleize(idx)

	root, err := hh.HashRoot()
	if err != nil {
		return ZeroHash, err
	}
	return Root(root), nil
}
