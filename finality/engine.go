// Package finality implements the checkpoint justification/finalization
// engine: stake-weighted attestation aggregation with zero-trust signature
// re-verification, the two-step Casper rule over the checkpoint ledger, and
// the circuit breaker that gates all of it.
package finality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/finlabs/ffg/config"
	"github.com/finlabs/ffg/storage"
	"github.com/finlabs/ffg/types"
)

// Engine owns the finality state. All mutating operations are serialized
// through a single writer lock; the ledger keeps its own read lock so pure
// queries run against the latest committed snapshot without blocking
// writers. The aggregator and breaker are mutated only under the writer
// lock.
type Engine struct {
	mu sync.RWMutex

	cfg        config.Config
	oracle     StakeOracle
	ledger     *Ledger
	aggregator *Aggregator
	notifier   *Notifier
	breaker    *breaker
	logger     *slog.Logger

	chainHead types.Height
}

// NewEngine constructs an engine in the Running state.
func NewEngine(cfg config.Config, oracle StakeOracle, verifier SignatureVerifier, store storage.Store, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ledger := NewLedger()
	return &Engine{
		cfg:        cfg,
		oracle:     oracle,
		ledger:     ledger,
		aggregator: NewAggregator(oracle, verifier, ledger, logger),
		notifier:   NewNotifier(store, logger),
		breaker:    newBreaker(cfg.MaxSyncAttempts),
		logger:     logger,
	}, nil
}

// ProcessResult is the outcome of one attestation batch.
type ProcessResult struct {
	Accepted  int
	Rejected  []RejectedAttestation
	Conflicts []ConflictEvidence

	NewJustified []*types.Checkpoint
	NewFinalized []*types.Checkpoint
	// Notices are the finalization notices built this call, one per newly
	// finalized checkpoint, already delivered unless the returned error
	// wraps ErrStorage.
	Notices []*types.MarkFinalizedRequest
}

// ProcessAttestations runs the full pipeline for one batch: zero-trust
// aggregation, then the justification/finalization rule for every touched
// target. It fails fast with ErrSystemHalted while the breaker is open,
// with no ledger mutation and no notice emitted.
//
// A storage delivery failure is returned alongside the result; the
// finalization recorded in the ledger stands and the caller owns redelivery.
func (e *Engine) ProcessAttestations(ctx context.Context, batch *types.AttestationBatch) (*ProcessResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.state.Phase != PhaseRunning {
		return nil, fmt.Errorf("%w: %s", ErrSystemHalted, e.breaker.state)
	}

	// Every dependency call is bounded; exceeding the bound feeds the
	// breaker as a sync failure rather than hanging the pipeline.
	octx, cancel := context.WithTimeout(ctx, e.cfg.SyncTimeout)
	defer cancel()

	agg, err := e.aggregator.Process(octx, batch)
	if err != nil {
		e.applyEvent(EventFinalityFailed)
		return nil, err
	}

	result := &ProcessResult{
		Accepted:  len(agg.Accepted),
		Rejected:  agg.Rejected,
		Conflicts: agg.Conflicts,
	}
	if len(agg.Targets) == 0 {
		// Nothing aggregated; absence of new attestations is not a failure.
		return result, nil
	}

	total, err := e.oracle.TotalActiveStake(octx, batch.Epoch)
	if err != nil {
		e.applyEvent(EventFinalityFailed)
		return result, fmt.Errorf("%w: %w", ErrStakeUnavailable, err)
	}

	var deliveryErr error
	for _, root := range agg.Targets {
		target, ok := e.aggregator.Aggregate(root)
		if !ok {
			continue
		}
		decision, err := e.evaluateTarget(total, target)
		if err != nil {
			if errors.Is(err, ErrInsufficientAttestations) {
				continue
			}
			e.applyEvent(EventFinalityFailed)
			return result, err
		}
		deliveryErr = errors.Join(deliveryErr, e.applyDecision(octx, decision, result))
	}
	return result, deliveryErr
}

// applyDecision records a decision's outcome and delivers any notice.
func (e *Engine) applyDecision(ctx context.Context, decision *Decision, result *ProcessResult) error {
	if decision.Justified != nil {
		result.NewJustified = append(result.NewJustified, decision.Justified)
	}
	if decision.Finalized == nil {
		return nil
	}
	result.NewFinalized = append(result.NewFinalized, decision.Finalized)

	req, err := e.notifier.NotifyFinalized(ctx, decision.Finalized, decision.Proof)
	if req != nil {
		result.Notices = append(result.Notices, req)
	}
	return err
}

// ObserveBlock feeds chain growth into the engine. Crossing an epoch
// boundary appends a pending checkpoint and returns it; other heights only
// move the head. Refused while halted: manual intervention is the sole
// permitted mutation there.
func (e *Engine) ObserveBlock(root types.Root, height types.Height) (*types.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.state.Phase == PhaseHalted {
		return nil, fmt.Errorf("%w: %s", ErrSystemHalted, e.breaker.state)
	}

	if height > e.chainHead {
		e.chainHead = height
	}
	if !types.IsEpochBoundary(height, e.cfg.EpochLength) {
		return nil, nil
	}

	cp := &types.Checkpoint{
		Epoch:  types.EpochAtHeight(height, e.cfg.EpochLength),
		Root:   root,
		Height: height,
		State:  types.Pending,
	}
	if err := e.ledger.Append(cp); err != nil {
		return nil, err
	}
	e.logger.Debug("checkpoint created", "epoch", cp.Epoch, "height", cp.Height, "root", cp.Root.Short())

	e.checkStalledFinality(cp.Epoch)
	return cp, nil
}

// checkStalledFinality raises a finality failure when a checkpoint two
// boundaries back attracted attestations yet never justified: the epoch has
// been fully processed without progress.
func (e *Engine) checkStalledFinality(current types.Epoch) {
	if current < 2 || e.breaker.state.Phase != PhaseRunning {
		return
	}
	stale, err := e.ledger.ByEpoch(current - 2)
	if err != nil || stale.State != types.Pending {
		return
	}
	agg, ok := e.aggregator.Aggregate(stale.Root)
	if !ok || agg.Stake == 0 {
		// Never voted on; absence of attestations is not a failure.
		return
	}
	e.logger.Warn("finality stalled",
		"epoch", stale.Epoch,
		"root", stale.Root.Short(),
		"stake", agg.Stake,
	)
	e.applyEvent(EventFinalityFailed)
}

// Resync is one bounded recovery attempt, entered while the breaker is in
// the syncing phase. It re-reads the stake oracle and re-evaluates every
// undecided target; renewed progress (or a healthy oracle with no pending
// work) succeeds, a dependency error, deadline, or lack of progress fails.
func (e *Engine) Resync(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.state.Phase != PhaseSyncing {
		return e.breaker.state, nil
	}

	epoch := types.EpochAtHeight(e.chainHead, e.cfg.EpochLength)
	total, err := e.oracle.TotalActiveStake(ctx, epoch)
	if err != nil || total == 0 {
		state := e.applyEvent(EventSyncFailed)
		if err == nil {
			err = fmt.Errorf("%w: zero total active stake", ErrStakeUnavailable)
		}
		return state, err
	}

	undecided := e.aggregator.Undecided()
	if len(undecided) == 0 {
		return e.applyEvent(EventSyncSucceeded), nil
	}

	progress := false
	for _, root := range undecided {
		if err := ctx.Err(); err != nil {
			return e.applyEvent(EventSyncFailed), err
		}
		agg, ok := e.aggregator.Aggregate(root)
		if !ok {
			continue
		}
		decision, err := e.evaluateTarget(total, agg)
		if err != nil {
			continue
		}
		if decision.Justified != nil {
			progress = true
		}
		if decision.Finalized != nil {
			// Best effort here; the notice can be redelivered.
			if _, err := e.notifier.NotifyFinalized(ctx, decision.Finalized, decision.Proof); err != nil {
				e.logger.Warn("notice delivery during resync failed", "error", err)
			}
		}
	}

	if progress {
		return e.applyEvent(EventSyncSucceeded), nil
	}
	return e.applyEvent(EventSyncFailed), nil
}

// ResetFromHalted is the manual intervention hook. It fails with
// ErrNotHalted from any other state.
func (e *Engine) ResetFromHalted() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.state.Phase != PhaseHalted {
		return fmt.Errorf("%w: currently %s", ErrNotHalted, e.breaker.state)
	}
	e.applyEvent(EventManualIntervention)
	e.logger.Info("manual intervention: engine reset to running")
	return nil
}

// applyEvent advances the breaker under the writer lock and logs changes.
func (e *Engine) applyEvent(ev Event) State {
	next, changed := e.breaker.apply(ev)
	if changed {
		e.logger.Info("finality state transition", "event", ev, "state", next)
	}
	return next
}

// Redeliver resends a finalization notice after a delivery failure. The
// deterministic correlation id keeps repeats idempotent downstream.
func (e *Engine) Redeliver(ctx context.Context, req *types.MarkFinalizedRequest) error {
	return e.notifier.Redeliver(ctx, req)
}

// IsFinalized reports whether the block with the given hash is finalized.
func (e *Engine) IsFinalized(root types.Root) bool {
	cp, err := e.ledger.ByRoot(root)
	return err == nil && cp.State == types.Finalized
}

// LastFinalized returns the highest finalized checkpoint, if any.
func (e *Engine) LastFinalized() (*types.Checkpoint, bool) {
	return e.ledger.LastFinalized()
}

// State returns a snapshot of the circuit breaker state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.breaker.state
}

// FinalityLag returns the distance from the chain head to the last
// finalized height.
func (e *Engine) FinalityLag() uint64 {
	e.mu.RLock()
	head := e.chainHead
	e.mu.RUnlock()
	return e.ledger.FinalityLag(head)
}

// Checkpoint looks up a ledger entry by epoch.
func (e *Engine) Checkpoint(epoch types.Epoch) (*types.Checkpoint, error) {
	return e.ledger.ByEpoch(epoch)
}

// Config exposes the static configuration surface, including the
// inactivity leak horizon consumed by the economic layer downstream.
func (e *Engine) Config() config.Config {
	return e.cfg
}
