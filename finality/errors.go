package finality

import "errors"

// Finality errors
var (
	// ErrSystemHalted is returned by every mutating call while the circuit
	// breaker is open. Manual intervention is required to clear it.
	ErrSystemHalted = errors.New("system halted awaiting intervention")

	// ErrNotHalted rejects a manual reset from any state other than halted.
	ErrNotHalted = errors.New("reset requires halted state")

	// Per-attestation rejection reasons. These never fail a whole batch.
	ErrInvalidSignature       = errors.New("invalid attestation signature")
	ErrUnknownValidator       = errors.New("unknown validator for epoch")
	ErrUnknownCheckpoint      = errors.New("unknown target checkpoint")
	ErrConflictingAttestation = errors.New("conflicting attestation (slashing candidate)")
	ErrDuplicateAttestation   = errors.New("duplicate attestation")

	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointExists   = errors.New("checkpoint already recorded at height")
	ErrStateRegression    = errors.New("checkpoint state cannot move backward")

	// ErrStakeUnavailable wraps stake oracle failures and zero total stake.
	// The caller treats it as a sync failure for the circuit breaker.
	ErrStakeUnavailable = errors.New("stake oracle unavailable")

	// ErrInsufficientAttestations reports stake below the justification
	// threshold. Not fatal: the target is simply not justified yet.
	ErrInsufficientAttestations = errors.New("attesting stake below justification threshold")

	// ErrStorage wraps notifier delivery failures. The finalization fact in
	// the ledger is never rolled back because of it.
	ErrStorage = errors.New("finalization notice delivery failed")
)
