package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Weaver/internal/domain/session"
)

const sessionColumns = `id, provider_id, repo_id, repo_name, repo_path_with_namespace, repo_http_url,
	default_branch, status, workspace_path, vscode_port, error_message, created_at, updated_at`

func scanSession(row scannable) (session.Session, error) {
	var (
		s             session.Session
		defaultBranch *string
		port          *int
		errMsg        *string
	)
	err := row.Scan(&s.ID, &s.ProviderID, &s.RepoID, &s.RepoName, &s.RepoPathWithNamespace, &s.RepoHTTPURL,
		&defaultBranch, &s.Status, &s.WorkspacePath, &port, &errMsg, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if defaultBranch != nil {
		s.DefaultBranch = *defaultBranch
	}
	if port != nil {
		s.VSCodePort = *port
	}
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return s, nil
}

// --- Sessions ---

func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id DESC`)
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status session.Status) ([]session.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY id`, status)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]session.Session, error) {
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return orEmpty(sessions), rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id int64) (*session.Session, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %d", id)
	}
	return &sess, nil
}

func (s *Store) SessionExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("session exists %d: %w", id, err)
	}
	return exists, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	row := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO sessions (provider_id, repo_id, repo_name, repo_path_with_namespace, repo_http_url,
			default_branch, status, workspace_path, vscode_port, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		sess.ProviderID, sess.RepoID, sess.RepoName, sess.RepoPathWithNamespace, sess.RepoHTTPURL,
		nullIfEmpty(sess.DefaultBranch), sess.Status, sess.WorkspacePath, nullIfZero(sess.VSCodePort),
		nullIfEmpty(sess.ErrorMessage))
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return fmt.Errorf("create session: %w", classify(err))
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE sessions SET status = $2, workspace_path = $3, vscode_port = $4, error_message = $5, updated_at = $6
		 WHERE id = $1`,
		sess.ID, sess.Status, sess.WorkspacePath, nullIfZero(sess.VSCodePort), nullIfEmpty(sess.ErrorMessage), sess.UpdatedAt)
	return execExpectOne(tag, err, "update session %d", sess.ID)
}

func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete session %d", id)
}
