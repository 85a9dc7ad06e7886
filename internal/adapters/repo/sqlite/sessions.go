package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
)

var _ ports.SessionRepository = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data, updated_at FROM sessions ORDER BY destination`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *Store) Get(ctx context.Context, destination string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data, updated_at FROM sessions WHERE destination = ?`, destination)
	session, err := scanSession(row)
	if isNoRows(err) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *Store) Save(ctx context.Context, session domain.Session) (domain.Session, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode session: %w", err)
	}

	rev := s.nextRevision()
	if session.Revision == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (destination, data, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(destination) DO NOTHING`,
			session.Destination, string(data), rev)
		if err != nil {
			return domain.Session{}, fmt.Errorf("insert session %s: %w", session.Destination, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return domain.Session{}, fmt.Errorf("insert session %s: %w", session.Destination, err)
		} else if n == 0 {
			return domain.Session{}, fmt.Errorf("insert session %s: %w", session.Destination, domain.ErrSessionConflict)
		}
		session.Revision = rev
		return session, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET data = ?, updated_at = ? WHERE destination = ? AND updated_at = ?`,
		string(data), rev, session.Destination, session.Revision)
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session %s: %w", session.Destination, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session %s: %w", session.Destination, err)
	}
	if n == 0 {
		return domain.Session{}, fmt.Errorf("update session %s: %w", session.Destination, domain.ErrSessionChanged)
	}

	session.Revision = rev
	return session, nil
}

func (s *Store) Delete(ctx context.Context, destination string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE destination = ?`, destination); err != nil {
		return fmt.Errorf("delete session %s: %w", destination, err)
	}
	return nil
}

func (s *Store) PackChains(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT destination, count FROM pack_chains WHERE count > 0`)
	if err != nil {
		return nil, fmt.Errorf("query pack chains: %w", err)
	}
	defer rows.Close()

	chains := map[string]int{}
	for rows.Next() {
		var (
			dest  string
			count int
		)
		if err := rows.Scan(&dest, &count); err != nil {
			return nil, fmt.Errorf("scan pack chain: %w", err)
		}
		chains[dest] = count
	}
	return chains, rows.Err()
}

func (s *Store) SavePackChain(ctx context.Context, destination string, count int) error {
	if count <= 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM pack_chains WHERE destination = ?`, destination)
		if err != nil {
			return fmt.Errorf("reset pack chain %s: %w", destination, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pack_chains (destination, count) VALUES (?, ?)
		 ON CONFLICT(destination) DO UPDATE SET count = excluded.count`, destination, count)
	if err != nil {
		return fmt.Errorf("save pack chain %s: %w", destination, err)
	}
	return nil
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		data     string
		revision int64
	)
	if err := row.Scan(&data, &revision); err != nil {
		if isNoRows(err) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	session.Revision = revision
	return session, nil
}
