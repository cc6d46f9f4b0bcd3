package segment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latticecrm/lattice/internal/domain"
)

// NameCount is one row of a top-N breakdown.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SpendingStats summarizes total_spent across the matched set.
type SpendingStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Total   float64 `json:"total"`
}

// ActivityStats summarizes purchase activity across the matched set.
// ActiveCount is customers with a purchase in the last 30 days.
type ActivityStats struct {
	AverageOrders float64 `json:"average_orders"`
	ActiveCount   int     `json:"active_count"`
}

// PreviewResult is the full audience preview for a rule tree. Every block is
// computed fresh against the live store; nothing is cached.
type PreviewResult struct {
	TotalCount        int               `json:"total_count"`
	Sample            []domain.Customer `json:"sample"`
	GenderBreakdown   map[string]int    `json:"gender_breakdown"`
	AgeBuckets        map[string]int    `json:"age_buckets"`
	TopOccupations    []NameCount       `json:"top_occupations"`
	TopCities         []NameCount       `json:"top_cities"`
	Spending          SpendingStats     `json:"spending"`
	SpendTiers        map[string]int    `json:"spend_tiers"`
	Activity          ActivityStats     `json:"activity"`
	PurchaseFrequency map[string]int    `json:"purchase_frequency"`
}

// Previewer runs estimation and preview aggregations for rule trees.
type Previewer struct {
	db       *sql.DB
	compiler *Compiler
}

// NewPreviewer creates a previewer over the given database.
func NewPreviewer(db *sql.DB, compiler *Compiler) *Previewer {
	return &Previewer{db: db, compiler: compiler}
}

// Estimate returns the number of the owner's customers currently matching
// the rule tree.
func (p *Previewer) Estimate(ctx context.Context, ownerID string, tree domain.RuleTree) (int, error) {
	pred, err := p.compiler.Compile(tree, 2)
	if err != nil {
		return 0, err
	}
	return p.count(ctx, ownerID, pred)
}

func (p *Previewer) count(ctx context.Context, ownerID string, pred *Predicate) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM crm_customers WHERE owner_id = $1 AND (%s)", pred.Where)
	var n int
	if err := p.db.QueryRowContext(ctx, q, pred.ownerArgs(ownerID)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("estimate: %w", err)
	}
	return n, nil
}

// ownerArgs prepends the owner id to the predicate args for the $1 slot.
func (pr *Predicate) ownerArgs(ownerID string) []interface{} {
	return append([]interface{}{ownerID}, pr.Args...)
}

// Preview computes the full audience breakdown for a rule tree. The
// predicate is compiled once and reused for every aggregation pass, so all
// blocks describe the same rule cutoffs.
func (p *Previewer) Preview(ctx context.Context, ownerID string, tree domain.RuleTree) (*PreviewResult, error) {
	pred, err := p.compiler.Compile(tree, 2)
	if err != nil {
		return nil, err
	}

	out := &PreviewResult{
		GenderBreakdown:   map[string]int{},
		AgeBuckets:        map[string]int{},
		SpendTiers:        map[string]int{},
		PurchaseFrequency: map[string]int{},
	}

	if out.TotalCount, err = p.count(ctx, ownerID, pred); err != nil {
		return nil, err
	}
	if out.Sample, err = p.sample(ctx, ownerID, pred); err != nil {
		return nil, err
	}
	if err := p.groupCounts(ctx, ownerID, pred, "COALESCE(gender, 'unknown')", out.GenderBreakdown); err != nil {
		return nil, err
	}
	if err := p.groupCounts(ctx, ownerID, pred, ageBucketExpr, out.AgeBuckets); err != nil {
		return nil, err
	}
	if out.TopOccupations, err = p.topN(ctx, ownerID, pred, "occupation", 5); err != nil {
		return nil, err
	}
	if out.TopCities, err = p.topN(ctx, ownerID, pred, "city", 5); err != nil {
		return nil, err
	}
	if err := p.spending(ctx, ownerID, pred, &out.Spending); err != nil {
		return nil, err
	}
	if err := p.groupCounts(ctx, ownerID, pred, spendTierExpr, out.SpendTiers); err != nil {
		return nil, err
	}
	if err := p.activity(ctx, ownerID, pred, &out.Activity); err != nil {
		return nil, err
	}
	if err := p.groupCounts(ctx, ownerID, pred, frequencyBucketExpr, out.PurchaseFrequency); err != nil {
		return nil, err
	}
	return out, nil
}

const ageBucketExpr = `CASE
	WHEN age IS NULL THEN 'unknown'
	WHEN age < 18 THEN '<18'
	WHEN age <= 24 THEN '18-24'
	WHEN age <= 34 THEN '25-34'
	WHEN age <= 44 THEN '35-44'
	WHEN age <= 54 THEN '45-54'
	WHEN age <= 64 THEN '55-64'
	ELSE '65+'
END`

// spendTierExpr mirrors domain.SpendTier; the labels must stay identical so
// SQL breakdowns and in-process tiering agree.
const spendTierExpr = `CASE
	WHEN total_spent <= 0 THEN '0'
	WHEN total_spent < 1000 THEN '1-999'
	WHEN total_spent < 5000 THEN '1000-4999'
	WHEN total_spent < 10000 THEN '5000-9999'
	ELSE '10000+'
END`

const frequencyBucketExpr = `CASE
	WHEN order_count = 0 THEN '0'
	WHEN order_count = 1 THEN '1'
	WHEN order_count <= 3 THEN '2-3'
	WHEN order_count <= 5 THEN '4-5'
	ELSE '>5'
END`

const previewSampleSize = 5

func (p *Previewer) sample(ctx context.Context, ownerID string, pred *Predicate) ([]domain.Customer, error) {
	q := fmt.Sprintf(`
		SELECT id, name, email, COALESCE(city,''), COALESCE(age,0),
		       COALESCE(gender,''), COALESCE(occupation,''), total_spent, order_count
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
		ORDER BY id ASC LIMIT %d
	`, pred.Where, previewSampleSize)

	rows, err := p.db.QueryContext(ctx, q, pred.ownerArgs(ownerID)...)
	if err != nil {
		return nil, fmt.Errorf("preview sample: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Address.City,
			&c.Demographics.Age, &c.Demographics.Gender, &c.Demographics.Occupation,
			&c.Stats.TotalSpent, &c.Stats.OrderCount); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Previewer) groupCounts(ctx context.Context, ownerID string, pred *Predicate, expr string, into map[string]int) error {
	q := fmt.Sprintf(`
		SELECT %s AS bucket, COUNT(*)
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
		GROUP BY bucket
	`, expr, pred.Where)

	rows, err := p.db.QueryContext(ctx, q, pred.ownerArgs(ownerID)...)
	if err != nil {
		return fmt.Errorf("preview breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return fmt.Errorf("scan breakdown: %w", err)
		}
		into[bucket] = count
	}
	return rows.Err()
}

func (p *Previewer) topN(ctx context.Context, ownerID string, pred *Predicate, column string, n int) ([]NameCount, error) {
	q := fmt.Sprintf(`
		SELECT %s, COUNT(*)
		FROM crm_customers
		WHERE owner_id = $1 AND (%s) AND %s IS NOT NULL AND %s != ''
		GROUP BY %s
		ORDER BY COUNT(*) DESC, %s ASC
		LIMIT %d
	`, column, pred.Where, column, column, column, column, n)

	rows, err := p.db.QueryContext(ctx, q, pred.ownerArgs(ownerID)...)
	if err != nil {
		return nil, fmt.Errorf("preview top %s: %w", column, err)
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func (p *Previewer) spending(ctx context.Context, ownerID string, pred *Predicate, into *SpendingStats) error {
	q := fmt.Sprintf(`
		SELECT COALESCE(AVG(total_spent),0), COALESCE(MIN(total_spent),0),
		       COALESCE(MAX(total_spent),0), COALESCE(SUM(total_spent),0)
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
	`, pred.Where)

	err := p.db.QueryRowContext(ctx, q, pred.ownerArgs(ownerID)...).
		Scan(&into.Average, &into.Min, &into.Max, &into.Total)
	if err != nil {
		return fmt.Errorf("preview spending: %w", err)
	}
	return nil
}

func (p *Previewer) activity(ctx context.Context, ownerID string, pred *Predicate, into *ActivityStats) error {
	q := fmt.Sprintf(`
		SELECT COALESCE(AVG(order_count),0),
		       COUNT(*) FILTER (WHERE last_purchase >= NOW() - INTERVAL '30 days')
		FROM crm_customers
		WHERE owner_id = $1 AND (%s)
	`, pred.Where)

	err := p.db.QueryRowContext(ctx, q, pred.ownerArgs(ownerID)...).
		Scan(&into.AverageOrders, &into.ActiveCount)
	if err != nil {
		return fmt.Errorf("preview activity: %w", err)
	}
	return nil
}
