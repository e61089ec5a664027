package finality

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/finlabs/ffg/types"
)

// JustificationThreshold returns the minimum attesting stake that justifies
// a checkpoint, in integer arithmetic. The nominal 67% threshold is the
// exact Casper bound floor(2*total/3)+1, which makes it impossible for two
// disjoint one-third-or-less sets to both justify; other configured
// percentages scale as floor(total*percent/100)+1, capped at total so that
// 100 demands unanimity rather than an unreachable total+1.
func JustificationThreshold(total types.Gwei, percent uint64) types.Gwei {
	var threshold types.Gwei
	if percent == 67 {
		threshold = total*2/3 + 1
	} else {
		threshold = total*types.Gwei(percent)/100 + 1
	}
	if threshold > total {
		return total
	}
	return threshold
}

// Decision is the outcome of evaluating one target aggregate against the
// ledger.
type Decision struct {
	Justified *types.Checkpoint
	Finalized *types.Checkpoint
	Proof     *types.FinalityProof
}

// evaluateTarget applies the two-step Casper rule for one target: justify on
// supermajority, then finalize the immediate epoch predecessor if it is
// already justified. An epoch gap means no finalization, ever.
//
// Re-evaluating a decided target is a no-op: ledger state never regresses
// and no duplicate proof is produced. Callers enter holding the engine
// write lock.
func (e *Engine) evaluateTarget(total types.Gwei, agg *TargetAggregate) (*Decision, error) {
	if total == 0 {
		return nil, fmt.Errorf("%w: zero total active stake", ErrStakeUnavailable)
	}

	target, err := e.ledger.ByRoot(agg.Target.Root)
	if err != nil {
		return nil, err
	}
	if target.State >= types.Justified {
		// Already decided; late attestations are bookkeeping only.
		agg.Decided = true
		return &Decision{}, nil
	}

	threshold := JustificationThreshold(total, e.cfg.JustificationThresholdPercent)
	if agg.Stake < threshold {
		return nil, fmt.Errorf("%w: %d of %d required for epoch %d",
			ErrInsufficientAttestations, agg.Stake, threshold, target.Epoch)
	}

	justified, err := e.ledger.Advance(target.Epoch, types.Justified)
	if err != nil {
		return nil, err
	}
	agg.Decided = true
	decision := &Decision{Justified: justified}

	e.logger.Info("checkpoint justified",
		"epoch", justified.Epoch,
		"root", justified.Root.Short(),
		"stake", agg.Stake,
		"threshold", threshold,
	)

	if justified.Epoch == 0 {
		return decision, nil
	}

	pred, err := e.ledger.ByEpoch(justified.Epoch - 1)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			// Gap: the predecessor boundary was never observed.
			return decision, nil
		}
		return nil, err
	}

	switch pred.State {
	case types.Justified:
		finalized, err := e.ledger.Advance(pred.Epoch, types.Finalized)
		if err != nil {
			return nil, err
		}
		decision.Finalized = finalized
		decision.Proof = &types.FinalityProof{
			Source:             finalized.ID(),
			Target:             justified.ID(),
			AggregateSignature: aggregateSignature(agg.Attestations),
			Participation:      agg.Participation,
		}
		e.logger.Info("checkpoint finalized",
			"epoch", finalized.Epoch,
			"root", finalized.Root.Short(),
			"height", finalized.Height,
		)
	case types.Pending:
		// Consecutive-justification not met; C is justified on its own.
	case types.Finalized:
		// Nothing to do; finalization already happened via this link.
	}
	return decision, nil
}

// aggregateSignature combines the accepted signatures into the proof's
// aggregate. The devnet scheme hashes the concatenation; the real aggregate
// primitive slots in behind the SignatureVerifier port.
func aggregateSignature(attestations []types.Attestation) types.Signature {
	h := sha256.New()
	for i := range attestations {
		h.Write(attestations[i].Signature[:])
	}
	var out types.Signature
	copy(out[:32], h.Sum(nil))
	return out
}
