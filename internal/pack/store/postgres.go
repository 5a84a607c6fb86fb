package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"credible/internal/pack/models"
	"credible/pkg/platform/sentinel"
)

// PostgresStore persists packs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed pack store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, pack *models.Pack) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pack tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO packs (pack_id, issuer, name, description, created_at, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pack_id) DO NOTHING
	`, pack.ID, pack.Issuer, pack.Name, pack.Description, pack.CreatedAt, pack.Confirmed)
	if err != nil {
		return fmt.Errorf("save pack: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save pack: %w", err)
	}
	if inserted == 0 {
		return sentinel.ErrConflict
	}

	for _, m := range pack.Milestones {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pack_milestones (pack_id, milestone_index, title, description, proof_format, required)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, pack.ID, m.Index, m.Title, m.Description, m.ProofFormat, m.Required)
		if err != nil {
			return fmt.Errorf("save pack milestone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pack tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, packID string) (*models.Pack, error) {
	var pack models.Pack
	err := s.db.QueryRowContext(ctx, `
		SELECT pack_id, issuer, name, description, created_at, confirmed
		FROM packs WHERE pack_id = $1
	`, packID).Scan(&pack.ID, &pack.Issuer, &pack.Name, &pack.Description, &pack.CreatedAt, &pack.Confirmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pack: %w", err)
	}

	milestones, err := s.listMilestones(ctx, packID)
	if err != nil {
		return nil, err
	}
	pack.Milestones = milestones
	return &pack, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Pack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pack_id, issuer, name, description, created_at, confirmed
		FROM packs ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	defer rows.Close()

	var packs []*models.Pack
	for rows.Next() {
		var pack models.Pack
		if err := rows.Scan(&pack.ID, &pack.Issuer, &pack.Name, &pack.Description, &pack.CreatedAt, &pack.Confirmed); err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, &pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}

	for _, pack := range packs {
		milestones, err := s.listMilestones(ctx, pack.ID)
		if err != nil {
			return nil, err
		}
		pack.Milestones = milestones
	}
	return packs, nil
}

func (s *PostgresStore) Confirm(ctx context.Context, packID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE packs SET confirmed = TRUE WHERE pack_id = $1`, packID)
	if err != nil {
		return fmt.Errorf("confirm pack: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm pack: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listMilestones(ctx context.Context, packID string) ([]models.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT milestone_index, title, description, proof_format, required
		FROM pack_milestones WHERE pack_id = $1
		ORDER BY milestone_index
	`, packID)
	if err != nil {
		return nil, fmt.Errorf("list pack milestones: %w", err)
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.Index, &m.Title, &m.Description, &m.ProofFormat, &m.Required); err != nil {
			return nil, fmt.Errorf("scan pack milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pack milestones: %w", err)
	}
	return milestones, nil
}

// Verify interface compliance.
var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*InMemoryStore)(nil)
)
