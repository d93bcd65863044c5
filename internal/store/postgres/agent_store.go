package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avencia/agentmarket/internal/domain"
)

// AgentStore implements domain.AgentStore using PostgreSQL.
type AgentStore struct {
	pool *pgxpool.Pool
}

// NewAgentStore creates a new AgentStore backed by the given connection pool.
func NewAgentStore(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

const agentCols = `id, prompt, model_id, provider_id, wallet_id, wallet_secret,
	wallet_balance, items_acquired, status, created_at, updated_at`

// Create inserts a new agent. A duplicate id yields domain.ErrAlreadyExists.
func (s *AgentStore) Create(ctx context.Context, agent domain.Agent) error {
	const query = `
		INSERT INTO agents (
			id, prompt, model_id, provider_id, wallet_id, wallet_secret,
			wallet_balance, items_acquired, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		agent.ID, agent.Prompt, agent.ModelID, agent.ProviderID,
		agent.WalletID, agent.WalletSecret, agent.WalletBalance,
		agent.ItemsAcquired, string(agent.Status),
		agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create agent %s: %w", agent.ID, err)
	}
	return nil
}

// GetByID retrieves an agent by its primary key.
func (s *AgentStore) GetByID(ctx context.Context, id string) (domain.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentCols+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Agent{}, domain.ErrNotFound
		}
		return domain.Agent{}, fmt.Errorf("postgres: get agent %s: %w", id, err)
	}
	return a, nil
}

// List returns agents in creation order with pagination and optional time
// filtering.
func (s *AgentStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Agent, error) {
	query := `SELECT ` + agentCols + ` FROM agents WHERE 1=1`
	query, args := applyListOpts(query, opts, "created_at ASC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list agents rows: %w", err)
	}
	return agents, nil
}

// UpdateStatus sets the agent's operational status.
func (s *AgentStore) UpdateStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update agent status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddAcquiredItem appends an item name to the agent's acquisition list.
func (s *AgentStore) AddAcquiredItem(ctx context.Context, id string, itemName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents
		 SET items_acquired = array_append(items_acquired, $2), updated_at = NOW()
		 WHERE id = $1`,
		id, itemName,
	)
	if err != nil {
		return fmt.Errorf("postgres: add acquired item for agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateBalance overwrites the agent's tracked wallet balance.
func (s *AgentStore) UpdateBalance(ctx context.Context, id string, balance int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET wallet_balance = $2, updated_at = NOW() WHERE id = $1`,
		id, balance,
	)
	if err != nil {
		return fmt.Errorf("postgres: update agent balance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of agents.
func (s *AgentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM agents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count agents: %w", err)
	}
	return count, nil
}

// scanAgent scans a single agent row into a domain.Agent.
func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	var status string
	err := row.Scan(
		&a.ID, &a.Prompt, &a.ModelID, &a.ProviderID,
		&a.WalletID, &a.WalletSecret, &a.WalletBalance,
		&a.ItemsAcquired, &status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Agent{}, err
	}
	a.Status = domain.AgentStatus(status)
	return a, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// applyListOpts appends time filters, ordering, and pagination to a query
// that already ends in a WHERE clause.
func applyListOpts(query string, opts domain.ListOpts, order string) (string, []any) {
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + order

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
