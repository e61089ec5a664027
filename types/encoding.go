package types

import (
	"encoding/binary"
	"fmt"

	"github.com/OffchainLabs/go-bitfield"
)

// SSZ wire encoding for the gossip containers. Layouts are hand-rolled:
// little-endian integers, fixed-size fields in declaration order, 4-byte
// offsets for the variable tail.

const (
	checkpointIDWireSize = 8 + 32
	attestationWireSize  = 8 + 8 + 2*checkpointIDWireSize + 96
	batchFixedSize       = 4 + 8 + 8
	proofFixedSize       = 2*checkpointIDWireSize + 96 + 4
)

func marshalCheckpointID(dst []byte, c CheckpointID) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(c.Epoch))
	return append(dst, c.Root[:]...)
}

func unmarshalCheckpointID(buf []byte) CheckpointID {
	var c CheckpointID
	c.Epoch = Epoch(binary.LittleEndian.Uint64(buf[:8]))
	copy(c.Root[:], buf[8:40])
	return c
}

func marshalAttestation(dst []byte, a *Attestation) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(a.ValidatorID))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(a.Data.Slot))
	dst = marshalCheckpointID(dst, a.Data.Source)
	dst = marshalCheckpointID(dst, a.Data.Target)
	return append(dst, a.Signature[:]...)
}

func unmarshalAttestation(buf []byte) Attestation {
	var a Attestation
	a.ValidatorID = ValidatorID(binary.LittleEndian.Uint64(buf[:8]))
	a.Data.Slot = Slot(binary.LittleEndian.Uint64(buf[8:16]))
	a.Data.Source = unmarshalCheckpointID(buf[16:56])
	a.Data.Target = unmarshalCheckpointID(buf[56:96])
	copy(a.Signature[:], buf[96:192])
	return a
}

// MarshalSSZ encodes the batch for gossip. The upstream Verified hint is
// deliberately not part of the wire format.
func (b *AttestationBatch) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, batchFixedSize+len(b.Attestations)*attestationWireSize)
	buf = binary.LittleEndian.AppendUint32(buf, batchFixedSize)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Epoch))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Slot))
	for i := range b.Attestations {
		buf = marshalAttestation(buf, &b.Attestations[i])
	}
	return buf, nil
}

// UnmarshalSSZ decodes a gossip batch.
func (b *AttestationBatch) UnmarshalSSZ(buf []byte) error {
	if len(buf) < batchFixedSize {
		return fmt.Errorf("batch too short: %d bytes", len(buf))
	}
	offset := binary.LittleEndian.Uint32(buf[:4])
	if offset != batchFixedSize {
		return fmt.Errorf("bad attestation list offset: %d", offset)
	}
	b.Epoch = Epoch(binary.LittleEndian.Uint64(buf[4:12]))
	b.Slot = Slot(binary.LittleEndian.Uint64(buf[12:20]))

	tail := buf[batchFixedSize:]
	if len(tail)%attestationWireSize != 0 {
		return fmt.Errorf("bad attestation list length: %d bytes", len(tail))
	}
	n := len(tail) / attestationWireSize
	b.Attestations = make([]Attestation, n)
	for i := 0; i < n; i++ {
		b.Attestations[i] = unmarshalAttestation(tail[i*attestationWireSize:])
	}
	return nil
}

// MarshalSSZ encodes the proof for gossip and storage.
func (p *FinalityProof) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, proofFixedSize+len(p.Participation))
	buf = marshalCheckpointID(buf, p.Source)
	buf = marshalCheckpointID(buf, p.Target)
	buf = append(buf, p.AggregateSignature[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, proofFixedSize)
	return append(buf, p.Participation...), nil
}

// UnmarshalSSZ decodes a finality proof.
func (p *FinalityProof) UnmarshalSSZ(buf []byte) error {
	if len(buf) < proofFixedSize {
		return fmt.Errorf("proof too short: %d bytes", len(buf))
	}
	p.Source = unmarshalCheckpointID(buf[:40])
	p.Target = unmarshalCheckpointID(buf[40:80])
	copy(p.AggregateSignature[:], buf[80:176])
	offset := binary.LittleEndian.Uint32(buf[176:180])
	if offset != proofFixedSize {
		return fmt.Errorf("bad participation offset: %d", offset)
	}
	p.Participation = bitfield.Bitlist(append([]byte(nil), buf[proofFixedSize:]...))
	return nil
}
