package database

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// PostgresWalletStore owns all writes to prober wallets. CreditIdempotent
// relies on wallet_ledger.check_id being a primary key: a retry that lands
// twice for the same check hits a unique violation and is reported as
// "already credited" rather than double-paying (spec §4.6, §8).
type PostgresWalletStore struct {
	db *sqlx.DB
}

func NewPostgresWalletStore(db *sqlx.DB) *PostgresWalletStore {
	return &PostgresWalletStore{db: db}
}

func (s *PostgresWalletStore) GetOrCreateWallet(ctx context.Context, proberID string) (*monitoring.ProberWallet, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prober_wallets (prober_id, balance) VALUES ($1, 0)
		ON CONFLICT (prober_id) DO NOTHING`, proberID)
	if err != nil {
		return nil, engerrors.Unavailable("get_or_create_wallet", err)
	}

	var balance int64
	if err := s.db.GetContext(ctx, &balance, `SELECT balance FROM prober_wallets WHERE prober_id = $1`, proberID); err != nil {
		return nil, engerrors.Unavailable("get_or_create_wallet", err)
	}

	var ledgerRows []struct {
		CheckID   string    `db:"check_id"`
		ProberID  string    `db:"prober_id"`
		AmountMin int64     `db:"amount_min"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &ledgerRows, `
		SELECT check_id, prober_id, amount_min, created_at FROM wallet_ledger
		WHERE prober_id = $1 ORDER BY created_at ASC`, proberID); err != nil {
		return nil, engerrors.Unavailable("get_or_create_wallet", err)
	}

	wallet := &monitoring.ProberWallet{ProberID: proberID, Balance: balance}
	for _, r := range ledgerRows {
		wallet.Ledger = append(wallet.Ledger, monitoring.LedgerEntry{
			CheckID: r.CheckID, ProberID: r.ProberID, AmountMin: r.AmountMin, CreatedAt: r.CreatedAt,
		})
	}
	return wallet, nil
}

func (s *PostgresWalletStore) CreditIdempotent(ctx context.Context, proberID, checkID string, amountMin int64, at time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, engerrors.Unavailable("credit_idempotent", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prober_wallets (prober_id, balance) VALUES ($1, 0)
		ON CONFLICT (prober_id) DO NOTHING`, proberID); err != nil {
		return false, engerrors.Unavailable("credit_idempotent", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger (check_id, prober_id, amount_min, created_at)
		VALUES ($1, $2, $3, $4)`, checkID, proberID, amountMin, at)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil // already credited for this check
		}
		return false, engerrors.Unavailable("credit_idempotent", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE prober_wallets SET balance = balance + $2 WHERE prober_id = $1`, proberID, amountMin); err != nil {
		return false, engerrors.Unavailable("credit_idempotent", err)
	}

	if err := tx.Commit(); err != nil {
		return false, engerrors.Unavailable("credit_idempotent", err)
	}
	return true, nil
}
