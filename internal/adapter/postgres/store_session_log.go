package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/Weaver/internal/domain/session"
)

// --- Session logs ---

func (s *Store) AppendLog(ctx context.Context, sessionID int64, message string) (*session.Log, error) {
	l := session.Log{SessionID: sessionID, Message: message}
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO session_logs (session_id, message) VALUES ($1, $2) RETURNING id, created_at`,
		sessionID, message,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append session log %d: %w", sessionID, err)
	}
	return &l, nil
}

func (s *Store) ListLogs(ctx context.Context, sessionID int64, offset, limit int) ([]session.Log, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT id, session_id, message, created_at FROM session_logs
		 WHERE session_id = $1 ORDER BY id ASC OFFSET $2 LIMIT $3`,
		sessionID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list session logs %d: %w", sessionID, err)
	}
	defer rows.Close()

	var logs []session.Log
	for rows.Next() {
		var l session.Log
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session log: %w", err)
		}
		logs = append(logs, l)
	}
	return orEmpty(logs), rows.Err()
}

func (s *Store) DeleteLogs(ctx context.Context, sessionID int64) error {
	if _, err := s.conn(ctx).Exec(ctx, `DELETE FROM session_logs WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session logs %d: %w", sessionID, err)
	}
	return nil
}

func (s *Store) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM session_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete session logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) LogSessionIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT DISTINCT session_id FROM session_logs ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list log session ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan log session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
