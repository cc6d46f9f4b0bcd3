// Package customer provides the owner-scoped customer store. The segment
// engine and the campaign dispatcher both resolve audiences through it.
package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/segment"
)

// ErrNotFound is returned when no customer matches the owner/id pair.
var ErrNotFound = errors.New("customer not found")

// Store implements customer persistence against PostgreSQL.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed customer store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const customerColumns = `id, owner_id, name, email, COALESCE(phone,''),
	COALESCE(street,''), COALESCE(city,''), COALESCE(state,''), COALESCE(country,''),
	COALESCE(age,0), COALESCE(gender,''), COALESCE(occupation,''),
	total_spent, order_count, average_order_value, first_purchase, last_purchase,
	is_active, created_at, updated_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone,
		&c.Address.Street, &c.Address.City, &c.Address.State, &c.Address.Country,
		&c.Demographics.Age, &c.Demographics.Gender, &c.Demographics.Occupation,
		&c.Stats.TotalSpent, &c.Stats.OrderCount, &c.Stats.AverageOrderValue,
		&c.Stats.FirstPurchase, &c.Stats.LastPurchase,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Create(ctx context.Context, c *domain.Customer) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_customers
			(id, owner_id, name, email, phone, street, city, state, country,
			 age, gender, occupation, total_spent, order_count, average_order_value,
			 first_purchase, last_purchase, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, NOW(), NOW())
	`, c.ID, c.OwnerID, c.Name, c.Email, c.Phone,
		c.Address.Street, c.Address.City, c.Address.State, c.Address.Country,
		c.Demographics.Age, c.Demographics.Gender, c.Demographics.Occupation,
		c.Stats.TotalSpent, c.Stats.OrderCount, c.Stats.AverageOrderValue,
		c.Stats.FirstPurchase, c.Stats.LastPurchase, true)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (s *Store) Get(ctx context.Context, ownerID, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM crm_customers WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM crm_customers
		WHERE owner_id = $1 AND is_active = TRUE
		ORDER BY id ASC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SoftDelete marks the customer inactive. Rows are never removed so the
// communication ledger keeps its references.
func (s *Store) SoftDelete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_customers SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMatching counts the owner's customers matching a compiled predicate.
// The predicate must be compiled with firstArg=2; owner scoping takes $1.
func (s *Store) CountMatching(ctx context.Context, ownerID string, p *segment.Predicate) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM crm_customers WHERE owner_id = $1 AND (%s)", p.Where)
	args := append([]interface{}{ownerID}, p.Args...)

	var count int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matching: %w", err)
	}
	return count, nil
}

// FindMatching fetches the owner's customers matching a compiled predicate,
// ordered by id so repeated dispatches walk recipients in a stable order.
func (s *Store) FindMatching(ctx context.Context, ownerID string, p *segment.Predicate) ([]domain.Customer, error) {
	q := fmt.Sprintf(`
		SELECT `+customerColumns+`
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
		ORDER BY id ASC
	`, p.Where)
	args := append([]interface{}{ownerID}, p.Args...)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find matching: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
