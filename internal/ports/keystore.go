package ports

import (
	"context"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// KeyStore issues and persists custody wallets. Implementations are
// single-writer per user id; callers must not run concurrent pipelines for
// the same user. A hardware-backed or remote signer can replace the local
// one without touching callers.
type KeyStore interface {
	// Generate creates a fresh random keypair with its derived address.
	// Never returns a previously issued key.
	Generate(ctx context.Context, userID string) (domain.CustodyWallet, error)

	// Load returns the persisted wallet for the user, or ok=false if
	// absent. A stored key whose re-derived address no longer matches is
	// treated as absent (corruption, not an error).
	Load(ctx context.Context, userID string) (domain.CustodyWallet, bool, error)

	// Save atomically overwrites the wallet record for the user.
	Save(ctx context.Context, wallet domain.CustodyWallet) error

	// Remove deletes the wallet record. Idempotent.
	Remove(ctx context.Context, userID string) error

	// Sign signs a 32-byte digest with the user's key.
	Sign(ctx context.Context, userID string, digest []byte) ([]byte, error)
}
