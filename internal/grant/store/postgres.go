package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"credible/internal/grant/models"
	"credible/pkg/platform/sentinel"
)

// PostgresStore persists grants in the access_grants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, grant *models.Grant) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO access_grants (id, holder, verifier, pack_id, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		grant.ID, grant.Holder, grant.Verifier, grant.PackID, grant.GrantedAt, grant.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (*models.Grant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, holder, verifier, pack_id, granted_at, expires_at, revoked_at
		FROM access_grants WHERE id = $1`, id)
	return scanGrant(row)
}

func (s *PostgresStore) ListByHolder(ctx context.Context, holder string) ([]*models.Grant, error) {
	return s.list(ctx, "holder", holder)
}

func (s *PostgresStore) ListByVerifier(ctx context.Context, verifier string) ([]*models.Grant, error) {
	return s.list(ctx, "verifier", verifier)
}

func (s *PostgresStore) list(ctx context.Context, column, value string) ([]*models.Grant, error) {
	query := fmt.Sprintf(`
		SELECT id, holder, verifier, pack_id, granted_at, expires_at, revoked_at
		FROM access_grants WHERE %s = $1
		ORDER BY granted_at`, column)
	rows, err := s.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*models.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, time.Now())
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if rows == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		if _, err := s.Find(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*models.Grant, error) {
	var g models.Grant
	var revokedAt sql.NullTime
	err := row.Scan(&g.ID, &g.Holder, &g.Verifier, &g.PackID, &g.GrantedAt, &g.ExpiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	if revokedAt.Valid {
		g.RevokedAt = &revokedAt.Time
	}
	return &g, nil
}

var _ Store = (*PostgresStore)(nil)
