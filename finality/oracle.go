package finality

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/finlabs/ffg/types"
)

// StakeOracle supplies validator records and stake totals per epoch. The
// engine depends only on this interface; the production deployment wraps the
// beacon state client, tests use doubles.
type StakeOracle interface {
	// Validator returns the record for a validator active in epoch, or an
	// error wrapping ErrUnknownValidator.
	Validator(ctx context.Context, epoch types.Epoch, id types.ValidatorID) (*types.Validator, error)
	// TotalActiveStake returns the summed stake of all validators active in
	// epoch.
	TotalActiveStake(ctx context.Context, epoch types.Epoch) (types.Gwei, error)
	// ActiveCount returns the number of validators active in epoch.
	ActiveCount(ctx context.Context, epoch types.Epoch) (uint64, error)
}

// SignatureVerifier is the raw cryptographic primitive. The engine re-checks
// every attestation through it regardless of upstream verification claims.
type SignatureVerifier interface {
	// Verify checks sig over the signing root against pub. A mismatch
	// between the recovered signer and pub is a verification failure.
	Verify(pub types.Pubkey, signingRoot types.Root, sig types.Signature) error
}

// StaticOracle is a registry-backed StakeOracle serving the same validator
// set for every epoch. Built from the yaml registry in production devnets
// and constructed directly in tests.
type StaticOracle struct {
	byID  map[types.ValidatorID]types.Validator
	total types.Gwei
}

// NewStaticOracle builds an oracle over a fixed validator set.
func NewStaticOracle(validators []types.Validator) *StaticOracle {
	o := &StaticOracle{byID: make(map[types.ValidatorID]types.Validator, len(validators))}
	for _, v := range validators {
		o.byID[v.ID] = v
		o.total += v.Stake
	}
	return o
}

func (o *StaticOracle) Validator(ctx context.Context, epoch types.Epoch, id types.ValidatorID) (*types.Validator, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStakeUnavailable, err)
	}
	v, ok := o.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: validator %d in epoch %d", ErrUnknownValidator, id, epoch)
	}
	return &v, nil
}

func (o *StaticOracle) TotalActiveStake(ctx context.Context, epoch types.Epoch) (types.Gwei, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStakeUnavailable, err)
	}
	return o.total, nil
}

func (o *StaticOracle) ActiveCount(ctx context.Context, epoch types.Epoch) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStakeUnavailable, err)
	}
	return uint64(len(o.byID)), nil
}

// DevnetVerifier is the interop signature scheme: a signature is valid when
// its first 32 bytes equal sha256(pubkey || signing_root). Production
// deployments substitute the real aggregate scheme behind the same
// interface.
type DevnetVerifier struct{}

// DevnetSign produces a signature DevnetVerifier accepts. Used by validators
// on devnets and by tests.
func DevnetSign(pub types.Pubkey, signingRoot types.Root) types.Signature {
	var sig types.Signature
	digest := devnetDigest(pub, signingRoot)
	copy(sig[:32], digest[:])
	return sig
}

func (DevnetVerifier) Verify(pub types.Pubkey, signingRoot types.Root, sig types.Signature) error {
	digest := devnetDigest(pub, signingRoot)
	if [32]byte(sig[:32]) != digest {
		return ErrInvalidSignature
	}
	return nil
}

func devnetDigest(pub types.Pubkey, signingRoot types.Root) [32]byte {
	h := sha256.New()
	h.Write(pub[:])
	h.Write(signingRoot[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
