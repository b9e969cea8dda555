package keystore

// sqlite.go — custody wallet persistence.
//
// One row per user id. The private key never leaves this process; the
// stored address is re-derived from the key on every load, and a mismatch
// is treated as "wallet absent" so corruption triggers fresh issuance
// instead of a crash.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id     TEXT PRIMARY KEY,
    private_key BLOB NOT NULL,
    address     TEXT NOT NULL,
    created_at  DATETIME NOT NULL
);
`

// SQLiteKeyStore implements ports.KeyStore backed by a local database.
// Single-writer per user id; callers serialize pipelines per user.
type SQLiteKeyStore struct {
	db *sql.DB
}

// New opens (or creates) the wallet database at the given path.
func New(path string) (*SQLiteKeyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("keystore.New: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore.New: apply schema: %w", err)
	}
	return &SQLiteKeyStore{db: db}, nil
}

// Generate creates a fresh random keypair, persists it and returns it.
func (s *SQLiteKeyStore) Generate(ctx context.Context, userID string) (domain.CustodyWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return domain.CustodyWallet{}, fmt.Errorf("keystore.Generate: %w", err)
	}
	wallet := domain.CustodyWallet{
		UserID:     userID,
		PrivateKey: crypto.FromECDSA(key),
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
	if err := s.Save(ctx, wallet); err != nil {
		return domain.CustodyWallet{}, err
	}
	return wallet, nil
}

// Load returns the persisted wallet, or ok=false when absent OR when the
// stored key no longer derives the stored address.
func (s *SQLiteKeyStore) Load(ctx context.Context, userID string) (domain.CustodyWallet, bool, error) {
	var wallet domain.CustodyWallet
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, private_key, address FROM wallets WHERE user_id = ?`, userID,
	).Scan(&wallet.UserID, &wallet.PrivateKey, &wallet.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CustodyWallet{}, false, nil
	}
	if err != nil {
		return domain.CustodyWallet{}, false, fmt.Errorf("keystore.Load: %w", err)
	}

	if derr := verifyAddress(wallet); derr != nil {
		slog.Warn("keystore: stored wallet failed re-derivation, treating as absent",
			"user", userID, "err", derr)
		return domain.CustodyWallet{}, false, nil
	}
	return wallet, true, nil
}

// Save atomically overwrites the wallet record for the user.
func (s *SQLiteKeyStore) Save(ctx context.Context, wallet domain.CustodyWallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, private_key, address, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			private_key = excluded.private_key,
			address     = excluded.address
	`, wallet.UserID, wallet.PrivateKey, wallet.Address, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("keystore.Save: %w", err)
	}
	return nil
}

// Remove deletes the wallet record. Idempotent.
func (s *SQLiteKeyStore) Remove(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("keystore.Remove: %w", err)
	}
	return nil
}

// Sign signs a 32-byte digest with the user's key.
func (s *SQLiteKeyStore) Sign(ctx context.Context, userID string, digest []byte) ([]byte, error) {
	wallet, ok, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("keystore.Sign: no wallet for user %q", userID)
	}
	key, err := crypto.ToECDSA(wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("keystore.Sign: %w", domain.ErrWalletCorrupt)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("keystore.Sign: %w", err)
	}
	return sig, nil
}

// Close closes the database connection.
func (s *SQLiteKeyStore) Close() error {
	return s.db.Close()
}

// verifyAddress re-derives the address from the stored key.
func verifyAddress(wallet domain.CustodyWallet) error {
	key, err := crypto.ToECDSA(wallet.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWalletCorrupt, err)
	}
	derived := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if derived != wallet.Address {
		return fmt.Errorf("%w: stored %s derived %s", domain.ErrWalletCorrupt, wallet.Address, derived)
	}
	return nil
}
