package domain

import "errors"

// Error taxonomy for user actions. Pre-flight errors block an action before
// any pipeline starts; the rest surface as step failures mid-pipeline.
var (
	// ErrInsufficientBalance: the wallet cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrLtvExceeded: the requested loan exceeds the collateral's max LTV.
	ErrLtvExceeded = errors.New("loan exceeds maximum LTV for collateral")

	// ErrStaleGuard: a just-in-time on-chain check no longer matches the
	// state the action was built from.
	ErrStaleGuard = errors.New("on-chain state changed since snapshot")

	// ErrRateLimited: transient provider throttling; reads retry with
	// bounded exponential backoff, writes never do.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrWriteReverted: the authoritative write failed or timed out waiting
	// for confirmation. Never auto-retried.
	ErrWriteReverted = errors.New("ledger write reverted or unconfirmed")

	// ErrWalletCorrupt: a persisted wallet failed address re-derivation.
	// Callers treat this as "wallet absent" and issue a fresh one.
	ErrWalletCorrupt = errors.New("stored wallet failed address re-derivation")
)
