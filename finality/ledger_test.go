package finality

import (
	"errors"
	"testing"

	"github.com/finlabs/ffg/types"
)

func checkpointAt(epoch types.Epoch, height types.Height, b byte) *types.Checkpoint {
	return &types.Checkpoint{
		Epoch:  epoch,
		Root:   types.Root{b},
		Height: height,
	}
}

func TestLedger_AppendAndLookup(t *testing.T) {
	l := NewLedger()

	cp := checkpointAt(1, 32, 0x01)
	if err := l.Append(cp); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	byEpoch, err := l.ByEpoch(1)
	if err != nil {
		t.Fatalf("ByEpoch() error = %v", err)
	}
	if byEpoch.Root != cp.Root || byEpoch.State != types.Pending {
		t.Errorf("ByEpoch() = %+v", byEpoch)
	}

	byRoot, err := l.ByRoot(cp.Root)
	if err != nil {
		t.Fatalf("ByRoot() error = %v", err)
	}
	if byRoot.Epoch != 1 {
		t.Errorf("ByRoot() epoch = %d", byRoot.Epoch)
	}

	byHeight, err := l.ByHeight(32)
	if err != nil {
		t.Fatalf("ByHeight() error = %v", err)
	}
	if byHeight.Epoch != 1 {
		t.Errorf("ByHeight() epoch = %d", byHeight.Epoch)
	}

	if _, err := l.ByEpoch(9); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("missing epoch error = %v, want ErrCheckpointNotFound", err)
	}
	if _, err := l.ByRoot(types.Root{0xff}); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("missing root error = %v, want ErrCheckpointNotFound", err)
	}
}

// One checkpoint per height: a competing chain's checkpoint at an occupied
// height is rejected, so two finalized checkpoints at one height cannot
// exist.
func TestLedger_OnePerHeight(t *testing.T) {
	l := NewLedger()

	if err := l.Append(checkpointAt(1, 32, 0x01)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	competitor := checkpointAt(2, 32, 0x02)
	if err := l.Append(competitor); !errors.Is(err, ErrCheckpointExists) {
		t.Errorf("competing height error = %v, want ErrCheckpointExists", err)
	}

	duplicateEpoch := checkpointAt(1, 64, 0x03)
	if err := l.Append(duplicateEpoch); !errors.Is(err, ErrCheckpointExists) {
		t.Errorf("duplicate epoch error = %v, want ErrCheckpointExists", err)
	}
}

func TestLedger_AdvanceMonotonic(t *testing.T) {
	l := NewLedger()
	if err := l.Append(checkpointAt(1, 32, 0x01)); err != nil {
		t.Fatal(err)
	}

	cp, err := l.Advance(1, types.Justified)
	if err != nil {
		t.Fatalf("Advance(justified) error = %v", err)
	}
	if cp.State != types.Justified {
		t.Errorf("state = %v", cp.State)
	}

	// Backward and repeated transitions are refused.
	if _, err := l.Advance(1, types.Pending); !errors.Is(err, ErrStateRegression) {
		t.Errorf("backward advance error = %v, want ErrStateRegression", err)
	}
	if _, err := l.Advance(1, types.Justified); !errors.Is(err, ErrStateRegression) {
		t.Errorf("repeated advance error = %v, want ErrStateRegression", err)
	}

	cp, err = l.Advance(1, types.Finalized)
	if err != nil {
		t.Fatalf("Advance(finalized) error = %v", err)
	}
	if cp.State != types.Finalized {
		t.Errorf("state = %v", cp.State)
	}

	if _, err := l.Advance(7, types.Justified); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("missing checkpoint error = %v", err)
	}
}

func TestLedger_LastFinalizedAndLag(t *testing.T) {
	l := NewLedger()

	if _, ok := l.LastFinalized(); ok {
		t.Error("empty ledger reported a finalized checkpoint")
	}
	if lag := l.FinalityLag(100); lag != 100 {
		t.Errorf("lag with nothing finalized = %d, want 100", lag)
	}

	for _, cp := range []*types.Checkpoint{
		checkpointAt(1, 32, 0x01),
		checkpointAt(2, 64, 0x02),
	} {
		if err := l.Append(cp); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Advance(cp.Epoch, types.Justified); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.Advance(1, types.Finalized); err != nil {
		t.Fatal(err)
	}

	last, ok := l.LastFinalized()
	if !ok || last.Epoch != 1 {
		t.Fatalf("LastFinalized() = %+v, %v", last, ok)
	}

	if lag := l.FinalityLag(100); lag != 68 {
		t.Errorf("FinalityLag(100) = %d, want 68", lag)
	}
	if lag := l.FinalityLag(32); lag != 0 {
		t.Errorf("FinalityLag(32) = %d, want 0", lag)
	}
}
