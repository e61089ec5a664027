package finality

import (
	"fmt"
	"sync"

	"github.com/finlabs/ffg/types"
)

// Ledger is the ordered, append-mostly checkpoint store. Checkpoints are
// keyed by epoch with hash and height indexes; state only advances forward
// and entries are never deleted.
//
// Exactly one checkpoint may occupy a height, which makes two finalized
// checkpoints at one height structurally impossible. Between competing
// justified chains, the one whose successor epoch justifies first wins
// finalization (highest-epoch-wins).
type Ledger struct {
	mu       sync.RWMutex
	byEpoch  map[types.Epoch]*types.Checkpoint
	byRoot   map[types.Root]types.Epoch
	byHeight map[types.Height]types.Epoch

	lastFinalized *types.Checkpoint
}

// NewLedger creates an empty checkpoint ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byEpoch:  make(map[types.Epoch]*types.Checkpoint),
		byRoot:   make(map[types.Root]types.Epoch),
		byHeight: make(map[types.Height]types.Epoch),
	}
}

// Append records a new pending checkpoint. The caller guarantees the height
// is an epoch boundary; the ledger enforces uniqueness per epoch, root and
// height.
func (l *Ledger) Append(cp *types.Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byEpoch[cp.Epoch]; exists {
		return fmt.Errorf("%w: epoch %d", ErrCheckpointExists, cp.Epoch)
	}
	if _, exists := l.byHeight[cp.Height]; exists {
		return fmt.Errorf("%w: height %d", ErrCheckpointExists, cp.Height)
	}
	if _, exists := l.byRoot[cp.Root]; exists {
		return fmt.Errorf("%w: root %s", ErrCheckpointExists, cp.Root.Short())
	}

	stored := *cp
	stored.State = types.Pending
	l.byEpoch[stored.Epoch] = &stored
	l.byRoot[stored.Root] = stored.Epoch
	l.byHeight[stored.Height] = stored.Epoch
	return nil
}

// ByEpoch returns a copy of the checkpoint at epoch.
func (l *Ledger) ByEpoch(epoch types.Epoch) (*types.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getLocked(epoch)
}

// ByRoot returns a copy of the checkpoint with the given block root.
func (l *Ledger) ByRoot(root types.Root) (*types.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	epoch, ok := l.byRoot[root]
	if !ok {
		return nil, fmt.Errorf("%w: root %s", ErrCheckpointNotFound, root.Short())
	}
	return l.getLocked(epoch)
}

// ByHeight returns a copy of the checkpoint at a block height.
func (l *Ledger) ByHeight(height types.Height) (*types.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	epoch, ok := l.byHeight[height]
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrCheckpointNotFound, height)
	}
	return l.getLocked(epoch)
}

func (l *Ledger) getLocked(epoch types.Epoch) (*types.Checkpoint, error) {
	cp, ok := l.byEpoch[epoch]
	if !ok {
		return nil, fmt.Errorf("%w: epoch %d", ErrCheckpointNotFound, epoch)
	}
	out := *cp
	return &out, nil
}

// Advance moves a checkpoint's state strictly forward. Equal or backward
// transitions fail with ErrStateRegression.
func (l *Ledger) Advance(epoch types.Epoch, next types.CheckpointState) (*types.Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp, ok := l.byEpoch[epoch]
	if !ok {
		return nil, fmt.Errorf("%w: epoch %d", ErrCheckpointNotFound, epoch)
	}
	if next <= cp.State {
		return nil, fmt.Errorf("%w: epoch %d is %s, refusing %s",
			ErrStateRegression, epoch, cp.State, next)
	}

	cp.State = next
	if next == types.Finalized {
		if l.lastFinalized == nil || cp.Height > l.lastFinalized.Height {
			frozen := *cp
			l.lastFinalized = &frozen
		}
	}
	out := *cp
	return &out, nil
}

// LastFinalized returns a copy of the highest finalized checkpoint, if any.
func (l *Ledger) LastFinalized() (*types.Checkpoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.lastFinalized == nil {
		return nil, false
	}
	out := *l.lastFinalized
	return &out, true
}

// FinalityLag returns how far the chain head has advanced past the last
// finalized height. With nothing finalized the lag is the full head height.
func (l *Ledger) FinalityLag(head types.Height) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.lastFinalized == nil {
		return uint64(head)
	}
	if head <= l.lastFinalized.Height {
		return 0
	}
	return uint64(head - l.lastFinalized.Height)
}
