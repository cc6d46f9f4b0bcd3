package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
)

// fieldColumns is the closed set of rule fields and the crm_customers
// columns they compile to. A field outside this map is a ValidationError,
// never a silent pass-through.
var fieldColumns = map[string]string{
	"total_spent":         "total_spent",
	"order_count":         "order_count",
	"average_order_value": "average_order_value",
	"last_purchase":       "last_purchase",
	"first_purchase":      "first_purchase",
	"city":                "city",
	"state":               "state",
	"country":             "country",
	"age":                 "age",
	"gender":              "gender",
	"occupation":          "occupation",
	"name":                "name",
	"email":               "email",
	"phone":               "phone",
	"is_active":           "is_active",
}

// dateFields compile numeric values as "days ago" cutoffs.
var dateFields = map[string]bool{
	"last_purchase":  true,
	"first_purchase": true,
}

// Predicate is a compiled rule tree: a parameterized WHERE fragment plus its
// arguments. Callers prepend their own owner scoping and splice the fragment
// into SELECT/COUNT statements.
type Predicate struct {
	Where string
	Args  []interface{}
}

// Compiler turns rule trees into SQL predicates. The clock is injectable so
// days-ago cutoffs are reproducible in tests; production uses time.Now, which
// means a dynamic segment can match differently on each evaluation.
type Compiler struct {
	now func() time.Time
}

// NewCompiler returns a compiler using the wall clock.
func NewCompiler() *Compiler {
	return &Compiler{now: time.Now}
}

// NewCompilerAt returns a compiler with a fixed clock, for tests.
func NewCompilerAt(now func() time.Time) *Compiler {
	return &Compiler{now: now}
}

// compileState carries the arg counter through the recursion.
type compileState struct {
	args       []interface{}
	argCounter int
}

func (st *compileState) nextArg(value interface{}) string {
	st.args = append(st.args, value)
	placeholder := fmt.Sprintf("$%d", st.argCounter)
	st.argCounter++
	return placeholder
}

// Compile compiles the rule tree into a predicate whose placeholders start
// at $firstArg. A tree with no leaf rules anywhere is a ValidationError: an
// empty predicate would silently match every customer.
func (c *Compiler) Compile(tree domain.RuleTree, firstArg int) (*Predicate, error) {
	if tree.LeafCount() == 0 {
		return nil, &ValidationError{Reason: "rule tree has no conditions"}
	}
	st := &compileState{argCounter: firstArg}
	where, err := c.compileGroup(st, tree.Combinator, tree.Rules)
	if err != nil {
		return nil, err
	}
	if where == "" {
		// Every leaf used an unknown operator
		return nil, &ValidationError{Reason: "rule tree compiled to no constraints"}
	}
	return &Predicate{Where: where, Args: st.args}, nil
}

// compileGroup builds SQL for one rule group, recursing into nested groups.
func (c *Compiler) compileGroup(st *compileState, comb domain.Combinator, rules []domain.RuleNode) (string, error) {
	parts := []string{}

	for i := range rules {
		node := &rules[i]
		if node.IsLeaf() {
			sql, err := c.compileLeaf(st, node)
			if err != nil {
				return "", err
			}
			if sql != "" {
				parts = append(parts, sql)
			}
			continue
		}
		if len(node.Rules) > 0 {
			subSQL, err := c.compileGroup(st, node.Combinator, node.Rules)
			if err != nil {
				return "", err
			}
			if subSQL != "" {
				parts = append(parts, "("+subSQL+")")
			}
		}
	}

	if len(parts) == 0 {
		return "", nil
	}

	operator := " AND "
	if strings.EqualFold(string(comb), string(domain.CombinatorOr)) {
		operator = " OR "
	}
	return strings.Join(parts, operator), nil
}

// compileLeaf builds SQL for a single comparison. An unknown operator yields
// no constraint; an unknown field is an error.
func (c *Compiler) compileLeaf(st *compileState, node *domain.RuleNode) (string, error) {
	column, ok := fieldColumns[node.Field]
	if !ok {
		return "", &ValidationError{Field: node.Field, Reason: "unknown field"}
	}

	value := node.Value
	if dateFields[node.Field] {
		if days, ok := asNumber(value); ok {
			value = c.now().AddDate(0, 0, -int(days))
		}
	}
	if node.Field == "is_active" {
		value = coerceBool(value)
	}

	switch node.Operator {
	case ">":
		return fmt.Sprintf("%s > %s", column, st.nextArg(value)), nil
	case "<":
		return fmt.Sprintf("%s < %s", column, st.nextArg(value)), nil
	case ">=":
		return fmt.Sprintf("%s >= %s", column, st.nextArg(value)), nil
	case "<=":
		return fmt.Sprintf("%s <= %s", column, st.nextArg(value)), nil
	case "==":
		return fmt.Sprintf("%s = %s", column, st.nextArg(value)), nil
	case "!=":
		return fmt.Sprintf("%s != %s", column, st.nextArg(value)), nil
	case "contains":
		return fmt.Sprintf("%s ILIKE %s", column, st.nextArg("%"+fmt.Sprintf("%v", node.Value)+"%")), nil
	default:
		// Unknown operators contribute nothing rather than failing the
		// whole tree
		return "", nil
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func coerceBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
