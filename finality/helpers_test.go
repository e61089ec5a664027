package finality

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/finlabs/ffg/config"
	"github.com/finlabs/ffg/storage/memory"
	"github.com/finlabs/ffg/types"
)

// testValidators builds n equal-stake validators with distinct keys.
func testValidators(n int) []types.Validator {
	validators := make([]types.Validator, n)
	for i := range validators {
		var pub types.Pubkey
		binary.LittleEndian.PutUint64(pub[:8], uint64(i)+1)
		validators[i] = types.Validator{
			ID:     types.ValidatorID(i),
			Pubkey: pub,
			Stake:  1,
		}
	}
	return validators
}

// attest produces a validly signed attestation from validator v.
func attest(t *testing.T, v types.Validator, slot types.Slot, source, target types.CheckpointID) types.Attestation {
	t.Helper()
	data := types.AttestationData{Slot: slot, Source: source, Target: target}
	root, err := data.SigningRoot()
	if err != nil {
		t.Fatalf("signing root: %v", err)
	}
	return types.Attestation{
		ValidatorID: v.ID,
		Data:        data,
		Signature:   DevnetSign(v.Pubkey, root),
	}
}

// testConfig is the compact configuration used across engine tests.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.EpochLength = 32
	return cfg
}

// flakyOracle wraps a StaticOracle and can be switched into a failing mode
// to simulate an unreachable dependency.
type flakyOracle struct {
	inner *StaticOracle
	fail  bool
}

var errOracleDown = errors.New("oracle unreachable")

func (o *flakyOracle) Validator(ctx context.Context, epoch types.Epoch, id types.ValidatorID) (*types.Validator, error) {
	if o.fail {
		return nil, errOracleDown
	}
	return o.inner.Validator(ctx, epoch, id)
}

func (o *flakyOracle) TotalActiveStake(ctx context.Context, epoch types.Epoch) (types.Gwei, error) {
	if o.fail {
		return 0, errOracleDown
	}
	return o.inner.TotalActiveStake(ctx, epoch)
}

func (o *flakyOracle) ActiveCount(ctx context.Context, epoch types.Epoch) (uint64, error) {
	if o.fail {
		return 0, errOracleDown
	}
	return o.inner.ActiveCount(ctx, epoch)
}

// failingStore rejects deliveries while fail is set, recording nothing.
type failingStore struct {
	inner *memory.Store
	fail  bool
}

var errStoreDown = errors.New("store unreachable")

func (s *failingStore) MarkFinalized(ctx context.Context, req *types.MarkFinalizedRequest) error {
	if s.fail {
		return errStoreDown
	}
	return s.inner.MarkFinalized(ctx, req)
}

func (s *failingStore) Finalized(ctx context.Context, height types.Height) (*types.MarkFinalizedRequest, bool, error) {
	return s.inner.Finalized(ctx, height)
}

func (s *failingStore) Close() error { return nil }
