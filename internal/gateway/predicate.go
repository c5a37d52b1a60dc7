package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/dbpool"
)

// Cond is one structured predicate: column, operator, bound value.
// Predicates compile to parameterized SQL; caller values never reach the
// statement text.
type Cond struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

var allowedOps = map[string]struct{}{
	"=": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {}, "LIKE": {},
}

// Eq is shorthand for an equality predicate.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: "=", Value: value}
}

// compileConds validates each predicate against the introspected column set
// and renders an AND-joined WHERE clause with placeholders. An empty conds
// slice yields an empty clause.
func (g *Gateway) compileConds(ctx context.Context, table string, conds []Cond) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	cols := g.intro.Columns(ctx, g.domain, table)

	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		op := strings.ToUpper(strings.TrimSpace(c.Op))
		if _, ok := allowedOps[op]; !ok {
			return "", nil, fmt.Errorf("gateway: operator %q not allowed: %w", c.Op, apperr.ErrValidation)
		}
		if _, ok := cols[c.Field]; !ok {
			return "", nil, fmt.Errorf("gateway: unknown column %q on %s: %w", c.Field, table, apperr.ErrValidation)
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", dbpool.QuoteIdent(c.Field), op))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
