package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avencia/agentmarket/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. The seq
// column preserves append order, so listings reproduce the order in which the
// matching engine emitted records.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given connection
// pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

const decisionCols = `id, agent_id, item_id, item_name, item_price, decision,
	max_price, reasoning, settlement, settlement_error, tx_id, created_at`

// Register appends a decision record. Registration is idempotent on record
// id: a duplicate insert leaves the first record untouched and returns it
// with created=false.
func (s *DecisionStore) Register(ctx context.Context, rec domain.DecisionRecord) (domain.DecisionRecord, bool, error) {
	const query = `
		INSERT INTO decisions (
			id, agent_id, item_id, item_name, item_price, decision,
			max_price, reasoning, settlement, settlement_error, tx_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		rec.ID, rec.AgentID, rec.ItemID, rec.ItemName, rec.ItemPrice,
		string(rec.Decision), rec.MaxPrice, rec.Reasoning,
		string(rec.Settlement), rec.SettlementErr, rec.TxID, rec.CreatedAt,
	)
	if err != nil {
		return domain.DecisionRecord{}, false, fmt.Errorf("postgres: register decision %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return rec, true, nil
	}

	existing, err := s.GetByID(ctx, rec.ID)
	if err != nil {
		return domain.DecisionRecord{}, false, fmt.Errorf("postgres: fetch existing decision %s: %w", rec.ID, err)
	}
	return existing, false, nil
}

// GetByID retrieves a decision record by its primary key.
func (s *DecisionStore) GetByID(ctx context.Context, id string) (domain.DecisionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionCols+` FROM decisions WHERE id = $1`, id)
	rec, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DecisionRecord{}, domain.ErrNotFound
		}
		return domain.DecisionRecord{}, fmt.Errorf("postgres: get decision %s: %w", id, err)
	}
	return rec, nil
}

// List returns decision records in append order.
func (s *DecisionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	query := `SELECT ` + decisionCols + ` FROM decisions WHERE 1=1`
	query, args := applyListOpts(query, opts, "seq ASC")
	return s.queryRecords(ctx, query, args...)
}

// ListByAgent returns one agent's decision records in append order.
func (s *DecisionStore) ListByAgent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	base := `SELECT ` + decisionCols + ` FROM decisions WHERE agent_id = $1`
	args := []any{agentID}
	argIdx := 2

	if opts.Since != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	base += " ORDER BY seq ASC"

	if opts.Limit > 0 {
		base += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		base += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryRecords(ctx, base, args...)
}

// ListBefore returns all records created before the cutoff, oldest first.
// Used by the archiver to select rows for cold storage.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.DecisionRecord, error) {
	query := `SELECT ` + decisionCols + ` FROM decisions WHERE created_at < $1 ORDER BY seq ASC`
	return s.queryRecords(ctx, query, before)
}

// Count returns the total number of decision records.
func (s *DecisionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM decisions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count decisions: %w", err)
	}
	return count, nil
}

func (s *DecisionStore) queryRecords(ctx context.Context, query string, args ...any) ([]domain.DecisionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query decisions: %w", err)
	}
	defer rows.Close()

	var recs []domain.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query decisions rows: %w", err)
	}
	return recs, nil
}

// scanDecision scans a single decision row into a domain.DecisionRecord.
func scanDecision(row pgx.Row) (domain.DecisionRecord, error) {
	var rec domain.DecisionRecord
	var decision, settlement string
	err := row.Scan(
		&rec.ID, &rec.AgentID, &rec.ItemID, &rec.ItemName, &rec.ItemPrice,
		&decision, &rec.MaxPrice, &rec.Reasoning,
		&settlement, &rec.SettlementErr, &rec.TxID, &rec.CreatedAt,
	)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	rec.Decision = domain.Verdict(decision)
	rec.Settlement = domain.SettlementStatus(settlement)
	return rec, nil
}
