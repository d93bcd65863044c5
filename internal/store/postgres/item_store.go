package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avencia/agentmarket/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

const itemCols = `id, name, description, price, seller_id, seller_wallet,
	contract_instance_id, created_at`

// Create inserts a new item. A duplicate id yields domain.ErrAlreadyExists.
func (s *ItemStore) Create(ctx context.Context, item domain.Item) error {
	const query = `
		INSERT INTO items (
			id, name, description, price, seller_id, seller_wallet,
			contract_instance_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		item.ID, item.Name, item.Description, item.Price,
		item.SellerID, item.SellerWallet,
		item.ContractInstanceID, item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create item %s: %w", item.ID, err)
	}
	return nil
}

// GetByID retrieves an item by its primary key.
func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE id = $1`, id)
	i, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Item{}, domain.ErrNotFound
		}
		return domain.Item{}, fmt.Errorf("postgres: get item %s: %w", id, err)
	}
	return i, nil
}

// List returns items in creation order with pagination and optional time
// filtering.
func (s *ItemStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	query := `SELECT ` + itemCols + ` FROM items WHERE 1=1`
	query, args := applyListOpts(query, opts, "created_at ASC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list items rows: %w", err)
	}
	return items, nil
}

// SetContractInstance binds an item to its listing contract instance. The
// binding is set exactly once: rebinding to the same instance id is a no-op,
// rebinding to a different id yields domain.ErrAlreadyExists.
func (s *ItemStore) SetContractInstance(ctx context.Context, id string, instanceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items
		 SET contract_instance_id = $2
		 WHERE id = $1 AND (contract_instance_id = '' OR contract_instance_id = $2)`,
		id, instanceID,
	)
	if err != nil {
		return fmt.Errorf("postgres: set contract instance for item %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: the item is missing or already bound elsewhere.
	var existing string
	err = s.pool.QueryRow(ctx,
		`SELECT contract_instance_id FROM items WHERE id = $1`, id,
	).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: check contract instance for item %s: %w", id, err)
	}
	return domain.ErrAlreadyExists
}

// Delete removes an item.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of items.
func (s *ItemStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count items: %w", err)
	}
	return count, nil
}

// scanItem scans a single item row into a domain.Item.
func scanItem(row pgx.Row) (domain.Item, error) {
	var i domain.Item
	err := row.Scan(
		&i.ID, &i.Name, &i.Description, &i.Price,
		&i.SellerID, &i.SellerWallet,
		&i.ContractInstanceID, &i.CreatedAt,
	)
	if err != nil {
		return domain.Item{}, err
	}
	return i, nil
}
