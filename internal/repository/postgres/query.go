package postgres

import (
	"fmt"
	"strings"

	"github.com/clinicflow/clinicflow/internal/types"
)

// whereBuilder collects positional conditions for list queries. The first
// condition is always the tenant scope.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func newTenantWhere(tenantID string) *whereBuilder {
	w := &whereBuilder{}
	w.add("tenant_id = ?", tenantID)
	return w
}

// add appends a condition, replacing each ? with the next positional placeholder
func (w *whereBuilder) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page appends ORDER BY and LIMIT/OFFSET for f
func (w *whereBuilder) page(orderColumn string, f *types.QueryFilter) string {
	order := "DESC"
	if f.GetOrder() == types.OrderAsc {
		order = "ASC"
	}
	w.args = append(w.args, f.GetLimit(), f.GetOffset())
	return fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d", orderColumn, order, order, len(w.args)-1, len(w.args))
}
