package segment

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/latticecrm/lattice/internal/domain"
)

func testCompiler() *Compiler {
	return NewCompilerAt(func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	})
}

func spendTree(min float64) domain.RuleTree {
	return domain.RuleTree{Rules: []domain.RuleNode{
		{Field: "total_spent", Operator: ">", Value: min},
	}}
}

func TestStoreCreateSnapshotsStats(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	lastActivity := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\),\s+COUNT\(\*\) FILTER`).
		WithArgs("owner-1", float64(500)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "avg", "last"}).
			AddRow(12, 4, 812.5, lastActivity))
	mock.ExpectExec(`INSERT INTO crm_segments`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db, testCompiler())
	seg := &domain.Segment{
		OwnerID: "owner-1",
		Name:    "big spenders",
		Rules:   spendTree(500),
	}
	if err := store.Create(context.Background(), seg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seg.ID == "" {
		t.Error("Create did not assign an id")
	}
	if seg.Stats.TotalCustomers != 12 || seg.Stats.ActiveCustomers != 4 {
		t.Errorf("stats = %+v", seg.Stats)
	}
	if seg.Stats.AverageSpend != 812.5 {
		t.Errorf("average spend = %v", seg.Stats.AverageSpend)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreCreateRejectsInvalidRules(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, testCompiler())
	seg := &domain.Segment{OwnerID: "owner-1", Name: "broken"}
	if err := store.Create(context.Background(), seg); err == nil {
		t.Fatal("empty rule tree accepted")
	}
}

func TestPreviewerEstimate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM crm_customers WHERE owner_id = \$1 AND \(total_spent > \$2\)`).
		WithArgs("owner-1", float64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	p := NewPreviewer(db, testCompiler())
	n, err := p.Estimate(context.Background(), "owner-1", spendTree(1000))
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if n != 3 {
		t.Errorf("estimate = %d, want 3", n)
	}
}

func TestPreviewerEstimateInvalidTree(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	p := NewPreviewer(db, testCompiler())
	if _, err := p.Estimate(context.Background(), "owner-1", domain.RuleTree{}); err == nil {
		t.Fatal("empty tree accepted")
	}
}

func TestPreviewAggregations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM crm_customers`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT id, name, email`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "city", "age", "gender", "occupation", "total_spent", "order_count"}).
			AddRow("c1", "Ada", "ada@example.com", "Berlin", 35, "female", "engineer", 1200.0, 4).
			AddRow("c2", "Bo", "bo@example.com", "Berlin", 41, "male", "teacher", 300.0, 1))
	mock.ExpectQuery(`SELECT COALESCE\(gender, 'unknown'\) AS bucket`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow("female", 1).AddRow("male", 1))
	mock.ExpectQuery(`SELECT CASE\s+WHEN age IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow("25-34", 1).AddRow("35-44", 1))
	mock.ExpectQuery(`SELECT occupation, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).
			AddRow("engineer", 1).AddRow("teacher", 1))
	mock.ExpectQuery(`SELECT city, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("Berlin", 2))
	mock.ExpectQuery(`SELECT COALESCE\(AVG\(total_spent\),0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "min", "max", "total"}).
			AddRow(750.0, 300.0, 1200.0, 1500.0))
	mock.ExpectQuery(`SELECT CASE\s+WHEN total_spent <= 0`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow(domain.SpendTier(1200), 1).AddRow(domain.SpendTier(300), 1))
	mock.ExpectQuery(`SELECT COALESCE\(AVG\(order_count\),0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "active"}).AddRow(2.5, 1))
	mock.ExpectQuery(`SELECT CASE\s+WHEN order_count = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow("1", 1).AddRow("4-5", 1))

	p := NewPreviewer(db, testCompiler())
	res, err := p.Preview(context.Background(), "owner-1", spendTree(100))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if res.TotalCount != 2 {
		t.Errorf("total = %d", res.TotalCount)
	}
	if len(res.Sample) != 2 {
		t.Errorf("sample = %d rows", len(res.Sample))
	}
	if res.GenderBreakdown["female"] != 1 {
		t.Errorf("gender breakdown = %v", res.GenderBreakdown)
	}
	if res.AgeBuckets["25-34"] != 1 {
		t.Errorf("age buckets = %v", res.AgeBuckets)
	}
	if len(res.TopCities) != 1 || res.TopCities[0].Name != "Berlin" {
		t.Errorf("top cities = %v", res.TopCities)
	}
	if res.Spending.Total != 1500.0 {
		t.Errorf("spending = %+v", res.Spending)
	}
	if res.SpendTiers["1000-4999"] != 1 || res.SpendTiers["1-999"] != 1 {
		t.Errorf("spend tiers = %v", res.SpendTiers)
	}
	if res.Activity.ActiveCount != 1 {
		t.Errorf("activity = %+v", res.Activity)
	}
	if res.PurchaseFrequency["4-5"] != 1 {
		t.Errorf("frequency = %v", res.PurchaseFrequency)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// The SQL tier expression and domain.SpendTier bucket the same amounts under
// the same labels; a drift between them would make the preview breakdown
// disagree with everything else that tiers spend.
func TestSpendTierLabelsMatchSQLExpression(t *testing.T) {
	for _, spent := range []float64{0, 1, 999, 1000, 4999, 5000, 9999, 10000} {
		label := domain.SpendTier(spent)
		if !strings.Contains(spendTierExpr, "'"+label+"'") {
			t.Errorf("SpendTier(%v) = %q, missing from spendTierExpr", spent, label)
		}
	}
}
