package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Weaver/internal/domain/provider"
)

// --- Providers ---

const providerColumns = `id, name, base_url, type, encrypted_token, git_config, created_at, updated_at`

func scanProvider(row scannable) (provider.Provider, error) {
	var p provider.Provider
	err := row.Scan(&p.ID, &p.Name, &p.BaseURL, &p.Type, &p.EncryptedToken, &p.GitConfig, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProviders(ctx context.Context) ([]provider.Provider, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []provider.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return orEmpty(providers), rows.Err()
}

func (s *Store) GetProvider(ctx context.Context, id int64) (*provider.Provider, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if err != nil {
		return nil, notFoundWrap(err, "get provider %d", id)
	}
	return &p, nil
}

func (s *Store) CreateProvider(ctx context.Context, p *provider.Provider) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO providers (name, base_url, type, encrypted_token, git_config)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.BaseURL, p.Type, p.EncryptedToken, p.GitConfig,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

func (s *Store) UpdateProvider(ctx context.Context, p *provider.Provider) error {
	err := s.conn(ctx).QueryRow(ctx,
		`UPDATE providers SET name = $2, base_url = $3, type = $4, encrypted_token = $5, git_config = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.Name, p.BaseURL, p.Type, p.EncryptedToken, p.GitConfig,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "update provider %d", p.ID)
	}
	return nil
}

func (s *Store) DeleteProvider(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete provider %d", id)
}
