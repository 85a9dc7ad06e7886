package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
)

var (
	_ ports.ConsumptionLog  = (*Store)(nil)
	_ ports.SyncCursorStore = (*Store)(nil)
)

func (s *Store) Record(ctx context.Context, entry domain.ConsumptionEntry) error {
	if entry.ID == "" {
		entry.ID = s.newID(entry.Timestamp)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumption_log (id, ts, destination, policy, duration_ms, debt, justification, allowed_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, unixNanos(entry.Timestamp), entry.Destination, string(entry.PolicyID),
		entry.Duration.Milliseconds(), entry.DebtCoins, entry.Justification, entry.AllowedURL)
	if err != nil {
		return fmt.Errorf("insert consumption entry: %w", err)
	}
	return nil
}

// Consumption returns the audit entries recorded at or after since, oldest first.
func (s *Store) Consumption(ctx context.Context, since time.Time) ([]domain.ConsumptionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, destination, policy, duration_ms, debt, justification, allowed_url
		 FROM consumption_log WHERE ts >= ? ORDER BY ts ASC, id ASC`, unixNanos(since))
	if err != nil {
		return nil, fmt.Errorf("query consumption log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ConsumptionEntry
	for rows.Next() {
		var (
			entry      domain.ConsumptionEntry
			ts         int64
			policy     string
			durationMs int64
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.Destination, &policy, &durationMs, &entry.DebtCoins, &entry.Justification, &entry.AllowedURL); err != nil {
			return nil, fmt.Errorf("scan consumption entry: %w", err)
		}
		entry.Timestamp = fromUnixNanos(ts)
		entry.PolicyID = domain.EmergencyPolicyID(policy)
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) Cursor(ctx context.Context, peer string) (time.Time, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursors WHERE peer = ?`, peer).Scan(&cursor)
	if isNoRows(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync cursor %s: %w", peer, err)
	}
	return fromUnixNanos(cursor), nil
}

func (s *Store) SaveCursor(ctx context.Context, peer string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (peer, cursor) VALUES (?, ?)
		 ON CONFLICT(peer) DO UPDATE SET cursor = excluded.cursor`, peer, unixNanos(at))
	if err != nil {
		return fmt.Errorf("save sync cursor %s: %w", peer, err)
	}
	return nil
}
