package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
)

var _ ports.LedgerStore = (*Store)(nil)

// Append writes the transaction and the new balance in one SQL transaction.
func (s *Store) Append(ctx context.Context, tx domain.Transaction, mode ports.AppendMode) (domain.WalletSnapshot, domain.Transaction, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer sqlTx.Rollback()

	var existing int
	if err := sqlTx.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE sync_id = ?`, tx.SyncID).Scan(&existing); err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("check sync id: %w", err)
	}
	if existing > 0 {
		return domain.WalletSnapshot{}, domain.Transaction{}, domain.ErrDuplicateSyncID
	}

	var balance int64
	if err := sqlTx.QueryRowContext(ctx, `SELECT balance FROM wallet WHERE id = 1`).Scan(&balance); err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("read balance: %w", err)
	}

	delta := tx.Delta()
	switch mode {
	case ports.AppendStrict:
		if balance+delta < 0 {
			return domain.WalletSnapshot{}, domain.Transaction{}, domain.ErrInsufficientFunds
		}
	case ports.AppendClamp:
		if balance+delta < 0 {
			tx.Meta = domain.CopyMeta(tx.Meta)
			if tx.Meta == nil {
				tx.Meta = map[string]string{}
			}
			tx.Meta[domain.MetaRequested] = strconv.FormatInt(delta, 10)
			delta = -balance
			tx.Amount = delta
		}
	}
	balance += delta

	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	tx.ID = s.newID(tx.Timestamp)

	meta, err := encodeMeta(tx.Meta)
	if err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, err
	}

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO transactions (id, sync_id, ts, kind, amount, meta, origin) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SyncID, unixNanos(tx.Timestamp), string(tx.Kind), tx.Amount, meta, tx.Origin); err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `UPDATE wallet SET balance = ? WHERE id = 1`, balance); err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("update balance: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, fmt.Errorf("commit ledger tx: %w", err)
	}

	return domain.WalletSnapshot{Balance: balance}, tx, nil
}

func (s *Store) Snapshot(ctx context.Context) (domain.WalletSnapshot, error) {
	var balance int64
	if err := s.db.QueryRowContext(ctx, `SELECT balance FROM wallet WHERE id = 1`).Scan(&balance); err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("read balance: %w", err)
	}
	return domain.WalletSnapshot{Balance: balance}, nil
}

// ListSince returns transactions with a timestamp at or after since, oldest first.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sync_id, ts, kind, amount, meta, origin FROM transactions
		 WHERE ts >= ? ORDER BY ts ASC, id ASC`, unixNanos(since))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		tx   domain.Transaction
		ts   int64
		kind string
		meta sql.NullString
	)
	if err := row.Scan(&tx.ID, &tx.SyncID, &ts, &kind, &tx.Amount, &meta, &tx.Origin); err != nil {
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Timestamp = fromUnixNanos(ts)
	tx.Kind = domain.TransactionKind(kind)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &tx.Meta); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode transaction meta %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}

func encodeMeta(meta map[string]string) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode transaction meta: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
