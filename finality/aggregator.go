package finality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OffchainLabs/go-bitfield"

	"github.com/finlabs/ffg/types"
)

// TargetAggregate accumulates accepted attestations for one target
// checkpoint. Once the engine reaches a justification decision the aggregate
// is frozen: later attestations are still recorded for bookkeeping but no
// longer move stake toward a decision.
type TargetAggregate struct {
	Target        types.CheckpointID
	Attestations  []types.Attestation
	Participation bitfield.Bitlist
	Stake         types.Gwei
	Decided       bool
}

// RejectedAttestation pairs a rejected attestation with its reason. Silent
// drops are forbidden; every rejection is counted and reported.
type RejectedAttestation struct {
	Attestation types.Attestation
	Reason      error
}

// ConflictEvidence is candidate slashing evidence: a validator attested to
// two different targets from the same source.
type ConflictEvidence struct {
	ValidatorID    types.ValidatorID
	Source         types.CheckpointID
	AcceptedTarget types.Root
	Conflicting    types.Attestation
}

// AggregationResult partitions a batch into disjoint accepted and rejected
// collections: accepted + rejected always equals the batch length.
type AggregationResult struct {
	Accepted  []types.Attestation
	Rejected  []RejectedAttestation
	Conflicts []ConflictEvidence
	// Targets lists the target roots touched by accepted attestations, in
	// first-seen batch order.
	Targets []types.Root
}

// Aggregator collects attestations per target checkpoint with zero-trust
// re-verification: every signature is recomputed and checked here, whatever
// the upstream Verified flag claims.
type Aggregator struct {
	oracle   StakeOracle
	verifier SignatureVerifier
	ledger   *Ledger
	logger   *slog.Logger

	targets map[types.Root]*TargetAggregate
	// votes records the accepted target per (validator, source root) for
	// equivocation detection; first accepted wins.
	votes map[types.ValidatorID]map[types.Root]types.Root
}

// NewAggregator creates an aggregator over the given ports and ledger.
func NewAggregator(oracle StakeOracle, verifier SignatureVerifier, ledger *Ledger, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		oracle:   oracle,
		verifier: verifier,
		ledger:   ledger,
		logger:   logger,
		targets:  make(map[types.Root]*TargetAggregate),
		votes:    make(map[types.ValidatorID]map[types.Root]types.Root),
	}
}

// verdict is the outcome of the parallel verification pass for one
// attestation.
type verdict struct {
	validator *types.Validator
	reject    error // per-attestation rejection reason
	fatal     error // structural failure, fails the whole call
}

// Process aggregates a batch. Per-attestation failures are absorbed into the
// rejected partition; only structural failures (oracle unreachable) fail the
// call, with no aggregate mutated.
func (a *Aggregator) Process(ctx context.Context, batch *types.AttestationBatch) (*AggregationResult, error) {
	verdicts := a.verifyAll(ctx, batch)
	for i := range verdicts {
		if verdicts[i].fatal != nil {
			return nil, verdicts[i].fatal
		}
	}

	// Resolve the registry size up front so no structural failure can occur
	// once aggregates start mutating.
	count, err := a.oracle.ActiveCount(ctx, batch.Epoch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStakeUnavailable, err)
	}

	result := &AggregationResult{}
	for i := range batch.Attestations {
		att := batch.Attestations[i]
		if reason := verdicts[i].reject; reason != nil {
			result.Rejected = append(result.Rejected, RejectedAttestation{Attestation: att, Reason: reason})
			continue
		}
		if err := a.accept(att, verdicts[i].validator, count, result); err != nil {
			result.Rejected = append(result.Rejected, RejectedAttestation{Attestation: att, Reason: err})
		}
	}
	return result, nil
}

// verifyAll runs signature re-verification for the whole batch in parallel.
// The work is independent per attestation; ordering is restored by index.
func (a *Aggregator) verifyAll(ctx context.Context, batch *types.AttestationBatch) []verdict {
	verdicts := make([]verdict, len(batch.Attestations))

	var wg sync.WaitGroup
	for i := range batch.Attestations {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i] = a.verifyOne(ctx, batch.Epoch, &batch.Attestations[i])
		}(i)
	}
	wg.Wait()
	return verdicts
}

func (a *Aggregator) verifyOne(ctx context.Context, epoch types.Epoch, att *types.Attestation) verdict {
	validator, err := a.oracle.Validator(ctx, epoch, att.ValidatorID)
	if err != nil {
		if errors.Is(err, ErrUnknownValidator) {
			return verdict{reject: err}
		}
		return verdict{fatal: fmt.Errorf("%w: %w", ErrStakeUnavailable, err)}
	}

	signingRoot, err := att.Data.SigningRoot()
	if err != nil {
		return verdict{reject: fmt.Errorf("%w: %w", ErrInvalidSignature, err)}
	}
	// Zero-trust: att.Verified is ignored here on purpose.
	if err := a.verifier.Verify(validator.Pubkey, signingRoot, att.Signature); err != nil {
		return verdict{reject: fmt.Errorf("%w: validator %d", ErrInvalidSignature, att.ValidatorID)}
	}
	return verdict{validator: validator}
}

// accept applies one verified attestation to its target aggregate.
func (a *Aggregator) accept(att types.Attestation, validator *types.Validator, activeCount uint64, result *AggregationResult) error {
	targetRoot := att.Data.Target.Root
	if _, err := a.ledger.ByRoot(targetRoot); err != nil {
		return fmt.Errorf("%w: target %s", ErrUnknownCheckpoint, targetRoot.Short())
	}

	sourceVotes, ok := a.votes[att.ValidatorID]
	if !ok {
		sourceVotes = make(map[types.Root]types.Root)
		a.votes[att.ValidatorID] = sourceVotes
	}
	if accepted, voted := sourceVotes[att.Data.Source.Root]; voted {
		if accepted == targetRoot {
			return ErrDuplicateAttestation
		}
		// First accepted wins; the later vote is slashing evidence.
		result.Conflicts = append(result.Conflicts, ConflictEvidence{
			ValidatorID:    att.ValidatorID,
			Source:         att.Data.Source,
			AcceptedTarget: accepted,
			Conflicting:    att,
		})
		a.logger.Warn("conflicting attestation",
			"validator", att.ValidatorID,
			"source", att.Data.Source.Root.Short(),
			"accepted_target", accepted.Short(),
			"conflicting_target", targetRoot.Short(),
		)
		return fmt.Errorf("%w: validator %d", ErrConflictingAttestation, att.ValidatorID)
	}

	agg := a.aggregateFor(att.Data.Target, activeCount)

	sourceVotes[att.Data.Source.Root] = targetRoot
	agg.Attestations = append(agg.Attestations, att)
	if uint64(att.ValidatorID) < agg.Participation.Len() {
		agg.Participation.SetBitAt(uint64(att.ValidatorID), true)
	}
	if !agg.Decided {
		agg.Stake += validator.Stake
	}

	result.Accepted = append(result.Accepted, att)
	if len(result.Targets) == 0 || !containsRoot(result.Targets, targetRoot) {
		result.Targets = append(result.Targets, targetRoot)
	}
	return nil
}

func (a *Aggregator) aggregateFor(target types.CheckpointID, activeCount uint64) *TargetAggregate {
	agg, ok := a.targets[target.Root]
	if ok {
		return agg
	}
	agg = &TargetAggregate{
		Target:        target,
		Participation: bitfield.NewBitlist(activeCount),
	}
	a.targets[target.Root] = agg
	return agg
}

// Aggregate returns the aggregate for a target root, if any.
func (a *Aggregator) Aggregate(targetRoot types.Root) (*TargetAggregate, bool) {
	agg, ok := a.targets[targetRoot]
	return agg, ok
}

// Undecided returns the target roots that have stake but no justification
// decision yet. Used by the recovery pass.
func (a *Aggregator) Undecided() []types.Root {
	var roots []types.Root
	for root, agg := range a.targets {
		if !agg.Decided {
			roots = append(roots, root)
		}
	}
	return roots
}

func containsRoot(roots []types.Root, root types.Root) bool {
	for _, r := range roots {
		if r == root {
			return true
		}
	}
	return false
}
