package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"credible/internal/chain"
	"credible/pkg/platform/sentinel"
)

// PostgresStore persists the projection in PostgreSQL. Raw record and
// normalized mutation are written in one transaction so a crash can never
// leave a recorded event without its read-model effect.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed projection store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Apply(ctx context.Context, rec Record, mut *Mutation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin projection tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chain_events (event_id, chain_id, block_number, log_index, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.ChainID, rec.BlockNumber, rec.LogIndex, rec.Type, rec.Payload)
	if err != nil {
		return false, fmt.Errorf("insert event record: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event record: %w", err)
	}
	if inserted == 0 {
		var existing []byte
		err := tx.QueryRowContext(ctx,
			`SELECT payload FROM chain_events WHERE event_id = $1`, rec.EventID,
		).Scan(&existing)
		if err != nil {
			return false, fmt.Errorf("read existing event record: %w", err)
		}
		if !bytes.Equal(existing, rec.Payload) {
			return false, sentinel.ErrIntegrity
		}
		return false, nil
	}

	if mut != nil {
		if err := applyMutation(ctx, tx, mut); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit projection tx: %w", err)
	}
	return true, nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, mut *Mutation) error {
	if mut.Pack != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projected_packs (pack_id, name, description, milestone_count, event_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (pack_id) DO NOTHING
		`, mut.Pack.PackID, mut.Pack.Name, mut.Pack.Description, mut.Pack.MilestoneCount, mut.Pack.EventID)
		if err != nil {
			return fmt.Errorf("project pack header: %w", err)
		}
	}
	if mut.Milestone != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projected_milestones (pack_id, milestone_id, title, description, required, event_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pack_id, milestone_id) DO NOTHING
		`, mut.Milestone.PackID, mut.Milestone.MilestoneID, mut.Milestone.Title, mut.Milestone.Description, mut.Milestone.Required, mut.Milestone.EventID)
		if err != nil {
			return fmt.Errorf("project milestone definition: %w", err)
		}
	}
	if mut.History != nil {
		h := mut.History
		_, err := tx.ExecContext(ctx, `
			INSERT INTO milestone_history (event_id, holder, pack_id, milestone_index, block_number, log_index, kind, proof_cid, feedback, new_progress)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (event_id) DO NOTHING
		`, h.EventID, h.Holder, h.PackID, h.MilestoneIndex, h.BlockNumber, h.LogIndex, h.Kind, h.ProofCID, h.Feedback, h.NewProgress)
		if err != nil {
			return fmt.Errorf("project milestone history: %w", err)
		}
	}
	if mut.Mint != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projected_mints (pack_id, holder, event_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (pack_id, holder) DO NOTHING
		`, mut.Mint.PackID, mut.Mint.Holder, mut.Mint.EventID)
		if err != nil {
			return fmt.Errorf("project mint: %w", err)
		}
	}
	for _, t := range mut.Transfers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO token_transfers (event_id, idx, operator, from_addr, to_addr, token_id, value)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, idx) DO NOTHING
		`, t.EventID, t.Index, t.Operator, t.From, t.To, t.TokenID, t.Value)
		if err != nil {
			return fmt.Errorf("project token transfer: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, eventID string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, chain_id, block_number, log_index, event_type, payload
		FROM chain_events WHERE event_id = $1
	`, eventID).Scan(&rec.EventID, &rec.ChainID, &rec.BlockNumber, &rec.LogIndex, &rec.Type, &rec.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find event record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Pack(ctx context.Context, packID string) (*PackProjection, error) {
	var proj PackProjection
	err := s.db.QueryRowContext(ctx, `
		SELECT pack_id, name, description, milestone_count, event_id
		FROM projected_packs WHERE pack_id = $1
	`, packID).Scan(&proj.Header.PackID, &proj.Header.Name, &proj.Header.Description, &proj.Header.MilestoneCount, &proj.Header.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find projected pack: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pack_id, milestone_id, title, description, required, event_id
		FROM projected_milestones WHERE pack_id = $1
		ORDER BY milestone_id
	`, packID)
	if err != nil {
		return nil, fmt.Errorf("list projected milestones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var def MilestoneDef
		if err := rows.Scan(&def.PackID, &def.MilestoneID, &def.Title, &def.Description, &def.Required, &def.EventID); err != nil {
			return nil, fmt.Errorf("scan projected milestone: %w", err)
		}
		proj.Milestones = append(proj.Milestones, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projected milestones: %w", err)
	}
	return &proj, nil
}

func (s *PostgresStore) History(ctx context.Context, key chain.MilestoneKey) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, holder, pack_id, milestone_index, block_number, log_index, kind, proof_cid, feedback, new_progress
		FROM milestone_history
		WHERE holder = $1 AND pack_id = $2 AND milestone_index = $3
		ORDER BY block_number, log_index
	`, key.Holder, key.PackID, key.MilestoneIndex)
	if err != nil {
		return nil, fmt.Errorf("list milestone history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.EventID, &h.Holder, &h.PackID, &h.MilestoneIndex, &h.BlockNumber, &h.LogIndex, &h.Kind, &h.ProofCID, &h.Feedback, &h.NewProgress); err != nil {
			return nil, fmt.Errorf("scan milestone history: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list milestone history: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Minted(ctx context.Context, packID, holder string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM projected_mints WHERE pack_id = $1 AND holder = $2)`,
		packID, holder,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check projected mint: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) TransfersByToken(ctx context.Context, tokenID string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, idx, operator, from_addr, to_addr, token_id, value
		FROM token_transfers WHERE token_id = $1
		ORDER BY event_id, idx
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("list token transfers: %w", err)
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.EventID, &t.Index, &t.Operator, &t.From, &t.To, &t.TokenID, &t.Value); err != nil {
			return nil, fmt.Errorf("scan token transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list token transfers: %w", err)
	}
	return transfers, nil
}

// Verify interface compliance.
var _ Store = (*PostgresStore)(nil)
var _ Store = (*InMemoryStore)(nil)
