package domain

import "time"

// Combinator joins the rules of a group.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// RuleTree is a user-authored boolean rule set. A node is either a leaf
// comparison (Field/Operator/Value set) or a nested group (Rules set).
// The zero Combinator means AND.
type RuleTree struct {
	Combinator Combinator `json:"combinator,omitempty"`
	Rules      []RuleNode `json:"rules"`
}

// RuleNode is one entry in a rule group. Exactly one of the two shapes is
// populated: a leaf comparison, or a nested subtree.
type RuleNode struct {
	// Leaf comparison.
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`

	// Nested group.
	Combinator Combinator `json:"combinator,omitempty"`
	Rules      []RuleNode `json:"rules,omitempty"`
}

// IsLeaf reports whether the node is a leaf comparison rather than a group.
func (n *RuleNode) IsLeaf() bool { return n.Field != "" }

// LeafCount returns the number of leaf rules anywhere in the tree.
func (t *RuleTree) LeafCount() int {
	return countLeaves(t.Rules)
}

func countLeaves(rules []RuleNode) int {
	n := 0
	for i := range rules {
		if rules[i].IsLeaf() {
			n++
		}
		n += countLeaves(rules[i].Rules)
	}
	return n
}

// Segment is a named, owner-scoped audience definition. Rules are
// re-evaluated against the live customer store on every read (IsDynamic);
// Stats are a cached snapshot refreshed on create/update.
type Segment struct {
	ID          string       `json:"id" db:"id"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description" db:"description"`
	Rules       RuleTree     `json:"rules"`
	Tags        []string     `json:"tags" db:"tags"`
	Stats       SegmentStats `json:"stats"`
	IsDynamic   bool         `json:"is_dynamic" db:"is_dynamic"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// SegmentStats is the cached aggregate snapshot stored with a segment.
type SegmentStats struct {
	TotalCustomers  int        `json:"total_customers" db:"total_customers"`
	ActiveCustomers int        `json:"active_customers" db:"active_customers"`
	AverageSpend    float64    `json:"average_spend" db:"average_spend"`
	LastActivity    *time.Time `json:"last_activity" db:"last_activity"`
}

// SpendTier buckets a spend amount for segment-level display.
// Tiers: 0, 1-999, 1000-4999, 5000-9999, 10000+.
func SpendTier(spent float64) string {
	switch {
	case spent <= 0:
		return "0"
	case spent < 1000:
		return "1-999"
	case spent < 5000:
		return "1000-4999"
	case spent < 10000:
		return "5000-9999"
	default:
		return "10000+"
	}
}
