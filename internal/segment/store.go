package segment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/latticecrm/lattice/internal/domain"
)

// ErrNotFound is returned when no segment matches the owner/id pair.
var ErrNotFound = errors.New("segment not found")

// Store implements segment persistence against PostgreSQL. Cached stats are
// recomputed from the live customer table on every create and update.
type Store struct {
	db       *sql.DB
	compiler *Compiler
}

// NewStore creates a Postgres-backed segment store.
func NewStore(db *sql.DB, compiler *Compiler) *Store {
	return &Store{db: db, compiler: compiler}
}

// Create validates the rule tree, snapshots stats, and inserts the segment.
func (s *Store) Create(ctx context.Context, seg *domain.Segment) error {
	pred, err := s.compiler.Compile(seg.Rules, 2)
	if err != nil {
		return err
	}
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}
	seg.IsDynamic = true
	seg.IsActive = true
	if err := s.computeStats(ctx, seg.OwnerID, pred, &seg.Stats); err != nil {
		return err
	}

	rulesJSON, err := json.Marshal(seg.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crm_segments
			(id, owner_id, name, description, rules, tags,
			 total_customers, active_customers, average_spend, last_activity,
			 is_dynamic, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`, seg.ID, seg.OwnerID, seg.Name, seg.Description, rulesJSON, pq.Array(seg.Tags),
		seg.Stats.TotalCustomers, seg.Stats.ActiveCustomers, seg.Stats.AverageSpend,
		seg.Stats.LastActivity, seg.IsDynamic, seg.IsActive)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ownerID, id string) (*domain.Segment, error) {
	seg := &domain.Segment{}
	var rulesJSON []byte
	var tags pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, COALESCE(description,''), rules, tags,
		       total_customers, active_customers, average_spend, last_activity,
		       is_dynamic, is_active, created_at, updated_at
		FROM crm_segments
		WHERE id = $1 AND owner_id = $2 AND is_active = TRUE
	`, id, ownerID).Scan(
		&seg.ID, &seg.OwnerID, &seg.Name, &seg.Description, &rulesJSON, &tags,
		&seg.Stats.TotalCustomers, &seg.Stats.ActiveCustomers, &seg.Stats.AverageSpend,
		&seg.Stats.LastActivity, &seg.IsDynamic, &seg.IsActive,
		&seg.CreatedAt, &seg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &seg.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	seg.Tags = tags
	return seg, nil
}

func (s *Store) List(ctx context.Context, ownerID string) ([]domain.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, COALESCE(description,''), rules, tags,
		       total_customers, active_customers, average_spend, last_activity,
		       is_dynamic, is_active, created_at, updated_at
		FROM crm_segments
		WHERE owner_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []domain.Segment
	for rows.Next() {
		var seg domain.Segment
		var rulesJSON []byte
		var tags pq.StringArray
		if err := rows.Scan(
			&seg.ID, &seg.OwnerID, &seg.Name, &seg.Description, &rulesJSON, &tags,
			&seg.Stats.TotalCustomers, &seg.Stats.ActiveCustomers, &seg.Stats.AverageSpend,
			&seg.Stats.LastActivity, &seg.IsDynamic, &seg.IsActive,
			&seg.CreatedAt, &seg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if err := json.Unmarshal(rulesJSON, &seg.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules: %w", err)
		}
		seg.Tags = tags
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Update revalidates the rules, refreshes the cached stats, and writes the
// segment in place.
func (s *Store) Update(ctx context.Context, seg *domain.Segment) error {
	pred, err := s.compiler.Compile(seg.Rules, 2)
	if err != nil {
		return err
	}
	if err := s.computeStats(ctx, seg.OwnerID, pred, &seg.Stats); err != nil {
		return err
	}

	rulesJSON, err := json.Marshal(seg.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_segments
		SET name = $1, description = $2, rules = $3, tags = $4,
		    total_customers = $5, active_customers = $6, average_spend = $7,
		    last_activity = $8, updated_at = NOW()
		WHERE id = $9 AND owner_id = $10 AND is_active = TRUE
	`, seg.Name, seg.Description, rulesJSON, pq.Array(seg.Tags),
		seg.Stats.TotalCustomers, seg.Stats.ActiveCustomers, seg.Stats.AverageSpend,
		seg.Stats.LastActivity, seg.ID, seg.OwnerID)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks the segment inactive. Campaigns already created against
// it keep working; it just disappears from lists.
func (s *Store) SoftDelete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_segments SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// computeStats snapshots the cached aggregate block: matched total, matched
// customers with a purchase in the last 30 days, average spend, and the most
// recent purchase anywhere in the set.
func (s *Store) computeStats(ctx context.Context, ownerID string, pred *Predicate, into *domain.SegmentStats) error {
	q := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE last_purchase >= NOW() - INTERVAL '30 days'),
		       COALESCE(AVG(total_spent),0),
		       MAX(last_purchase)
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
	`, pred.Where)

	err := s.db.QueryRowContext(ctx, q, pred.ownerArgs(ownerID)...).Scan(
		&into.TotalCustomers, &into.ActiveCustomers, &into.AverageSpend, &into.LastActivity)
	if err != nil {
		return fmt.Errorf("segment stats: %w", err)
	}
	return nil
}
