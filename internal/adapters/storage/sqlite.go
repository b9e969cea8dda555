package storage

// sqlite.go — mirror local del ledger.
//
// Estrategia:
//   - `offers` y `positions`: UNA fila por registro (UPSERT completo).
//     Last-write-wins: aceptable porque hay como máximo un pipeline
//     activo por usuario.
//   - `prices`: una fila por alias de caché (dirección exacta, dirección
//     en minúsculas, símbolo). El poller escribe; la UI lee.
//   - `balances`: saldos locales por usuario y token, ajustados por el
//     orquestador en pasos concretos del pipeline.
//   - Prune automático al arrancar: offers terminales > 30d.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS offers (
    id                TEXT PRIMARY KEY,
    on_chain_id       INTEGER NOT NULL DEFAULT 0,
    kind              TEXT    NOT NULL,
    counterparty      TEXT    NOT NULL DEFAULT '',
    collateral_addr   TEXT    NOT NULL,
    collateral_symbol TEXT    NOT NULL DEFAULT '',
    collateral_amount REAL    NOT NULL DEFAULT 0,
    loan_amount       REAL    NOT NULL DEFAULT 0,
    rate_bps          INTEGER NOT NULL DEFAULT 0,
    maturity_days     INTEGER NOT NULL DEFAULT 0,
    early_fee_bps     INTEGER NOT NULL DEFAULT 0,
    status            TEXT    NOT NULL,
    created_at        DATETIME NOT NULL,
    matched_at        DATETIME
);

CREATE TABLE IF NOT EXISTS positions (
    offer_id          TEXT PRIMARY KEY,
    on_chain_id       INTEGER NOT NULL DEFAULT 0,
    borrower          TEXT    NOT NULL,
    lender            TEXT    NOT NULL,
    collateral_addr   TEXT    NOT NULL,
    collateral_symbol TEXT    NOT NULL DEFAULT '',
    collateral_amount REAL    NOT NULL DEFAULT 0,
    principal_debt    REAL    NOT NULL DEFAULT 0,
    accrued_interest  REAL    NOT NULL DEFAULT 0,
    rate_bps          INTEGER NOT NULL DEFAULT 0,
    health_factor     REAL    NOT NULL DEFAULT 0,
    liquidation_price REAL    NOT NULL DEFAULT 0,
    maturity_date     DATETIME,
    ledger_open       INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS prices (
    alias       TEXT PRIMARY KEY,
    price       REAL     NOT NULL DEFAULT 0,
    observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
    user_id TEXT NOT NULL,
    token   TEXT NOT NULL,
    amount  REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, token)
);

CREATE INDEX IF NOT EXISTS idx_offers_status ON offers(status);
`

const retentionOffers = 30 * 24 * time.Hour // offers terminales: 30 días

// SQLiteStore implementa ports.LedgerStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// New abre (o crea) la base de datos en la ruta dada, aplica el schema
// y limpia registros antiguos.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.New: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.New: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveOffer hace upsert de la fila completa (last-write-wins).
func (s *SQLiteStore) SaveOffer(ctx context.Context, o domain.Offer) error {
	var matchedAt *time.Time
	if o.MatchedAt != nil {
		t := o.MatchedAt.UTC()
		matchedAt = &t
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers
			(id, on_chain_id, kind, counterparty, collateral_addr, collateral_symbol,
			 collateral_amount, loan_amount, rate_bps, maturity_days, early_fee_bps,
			 status, created_at, matched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			on_chain_id       = excluded.on_chain_id,
			counterparty      = excluded.counterparty,
			collateral_amount = excluded.collateral_amount,
			loan_amount       = excluded.loan_amount,
			rate_bps          = excluded.rate_bps,
			maturity_days     = excluded.maturity_days,
			early_fee_bps     = excluded.early_fee_bps,
			status            = excluded.status,
			matched_at        = excluded.matched_at
	`,
		o.ID, o.OnChainID, string(o.Kind), o.CounterpartyAddress,
		o.CollateralToken.Address, o.CollateralToken.Symbol,
		o.CollateralAmount, o.LoanAmount, o.InterestRateBps, o.MaturityDays,
		o.EarlyRepayFeeBps, string(o.Status), o.CreatedAt.UTC(), matchedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOffer: %s: %w", o.ID, err)
	}
	return nil
}

// OfferByID devuelve una offer por su id local.
func (s *SQLiteStore) OfferByID(ctx context.Context, id string) (domain.Offer, bool, error) {
	row := s.db.QueryRowContext(ctx, offerSelect+` WHERE id = ?`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Offer{}, false, nil
	}
	if err != nil {
		return domain.Offer{}, false, fmt.Errorf("storage.OfferByID: %w", err)
	}
	return o, true, nil
}

// Offers devuelve todas las offers conocidas, las más recientes primero.
func (s *SQLiteStore) Offers(ctx context.Context) ([]domain.Offer, error) {
	rows, err := s.db.QueryContext(ctx, offerSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage.Offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.Offers: scan: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// SavePosition hace upsert de la fila completa.
func (s *SQLiteStore) SavePosition(ctx context.Context, p domain.Position) error {
	open := 0
	if p.LedgerOpen {
		open = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(offer_id, on_chain_id, borrower, lender, collateral_addr,
			 collateral_symbol, collateral_amount, principal_debt,
			 accrued_interest, rate_bps, health_factor, liquidation_price,
			 maturity_date, ledger_open)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET
			collateral_amount = excluded.collateral_amount,
			principal_debt    = excluded.principal_debt,
			accrued_interest  = excluded.accrued_interest,
			health_factor     = excluded.health_factor,
			liquidation_price = excluded.liquidation_price,
			ledger_open       = excluded.ledger_open
	`,
		p.OfferID, p.OnChainID, p.BorrowerAddress, p.LenderAddress,
		p.CollateralToken.Address, p.CollateralToken.Symbol,
		p.CollateralAmount, p.PrincipalDebt, p.AccruedInterest,
		p.InterestRateBps, p.HealthFactor, p.LiquidationPrice,
		p.MaturityDate.UTC(), open,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.OfferID, err)
	}
	return nil
}

// PositionByOffer devuelve la posición derivada de una offer.
func (s *SQLiteStore) PositionByOffer(ctx context.Context, offerID string) (domain.Position, bool, error) {
	row := s.db.QueryRowContext(ctx, positionSelect+` WHERE offer_id = ?`, offerID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("storage.PositionByOffer: %w", err)
	}
	return p, true, nil
}

// Positions devuelve todas las posiciones conocidas.
func (s *SQLiteStore) Positions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, positionSelect)
	if err != nil {
		return nil, fmt.Errorf("storage.Positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.Positions: scan: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SavePrice persiste el precio observado bajo un alias de caché.
func (s *SQLiteStore) SavePrice(ctx context.Context, alias string, price float64, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices (alias, price, observed_at) VALUES (?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET
			price       = excluded.price,
			observed_at = excluded.observed_at
	`, alias, price, observedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SavePrice: %s: %w", alias, err)
	}
	return nil
}

// Price devuelve el último precio persistido para un alias.
func (s *SQLiteStore) Price(ctx context.Context, alias string) (float64, time.Time, bool, error) {
	var price float64
	var observedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT price, observed_at FROM prices WHERE alias = ?`, alias,
	).Scan(&price, &observedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("storage.Price: %w", err)
	}
	return price, observedAt, true, nil
}

// AdjustBalance aplica un delta al saldo local del usuario.
func (s *SQLiteStore) AdjustBalance(ctx context.Context, userID, token string, delta float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, token, amount) VALUES (?, ?, ?)
		ON CONFLICT(user_id, token) DO UPDATE SET
			amount = amount + excluded.amount
	`, userID, token, delta)
	if err != nil {
		return fmt.Errorf("storage.AdjustBalance: %s/%s: %w", userID, token, err)
	}
	return nil
}

// Balance devuelve el saldo local del usuario para un token.
func (s *SQLiteStore) Balance(ctx context.Context, userID, token string) (float64, error) {
	var amount float64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE user_id = ? AND token = ?`, userID, token,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return amount, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

const offerSelect = `
	SELECT id, on_chain_id, kind, counterparty, collateral_addr,
	       collateral_symbol, collateral_amount, loan_amount, rate_bps,
	       maturity_days, early_fee_bps, status, created_at, matched_at
	FROM offers`

const positionSelect = `
	SELECT offer_id, on_chain_id, borrower, lender, collateral_addr,
	       collateral_symbol, collateral_amount, principal_debt,
	       accrued_interest, rate_bps, health_factor, liquidation_price,
	       maturity_date, ledger_open
	FROM positions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (domain.Offer, error) {
	var o domain.Offer
	var kind, status string
	var matchedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.OnChainID, &kind, &o.CounterpartyAddress,
		&o.CollateralToken.Address, &o.CollateralToken.Symbol,
		&o.CollateralAmount, &o.LoanAmount, &o.InterestRateBps,
		&o.MaturityDays, &o.EarlyRepayFeeBps, &status, &o.CreatedAt, &matchedAt,
	)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Kind = domain.OfferKind(kind)
	o.Status = domain.OfferStatus(status)
	if matchedAt.Valid {
		t := matchedAt.Time
		o.MatchedAt = &t
	}
	return o, nil
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var open int
	err := row.Scan(
		&p.OfferID, &p.OnChainID, &p.BorrowerAddress, &p.LenderAddress,
		&p.CollateralToken.Address, &p.CollateralToken.Symbol,
		&p.CollateralAmount, &p.PrincipalDebt, &p.AccruedInterest,
		&p.InterestRateBps, &p.HealthFactor, &p.LiquidationPrice,
		&p.MaturityDate, &open,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.LedgerOpen = open == 1
	return p, nil
}

// pruneOld elimina offers terminales antiguas para mantener la DB ligera.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionOffers)
	s.db.ExecContext(ctx,
		`DELETE FROM offers WHERE status IN ('closed','cancelled','liquidated') AND created_at < ?`,
		cutoff)
}
