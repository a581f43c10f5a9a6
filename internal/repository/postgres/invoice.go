package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

// balance_amount is a generated column and never selected, Balance() derives it
const invoiceColumns = `id, tenant_id, invoice_number, subscription_id, status, currency, subtotal, tax_amount,
	discount_amount, total_amount, paid_amount, description, due_date, sent_at, paid_at, cancelled_at,
	written_off_at, metadata, version, created_at, updated_at, created_by, updated_by`

const lineItemColumns = `id, invoice_id, tenant_id, position, item_type, description, quantity, unit_price,
	discount, tax_rate, line_total, tax_amount, created_at`

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (
			:id, :tenant_id, :invoice_number, :subscription_id, :status, :currency, :subtotal, :tax_amount,
			:discount_amount, :total_amount, :paid_amount, :description, :due_date, :sent_at, :paid_at, :cancelled_at,
			:written_off_at, :metadata, :version, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"tenant_id", inv.TenantID,
		"line_items", len(inv.LineItems),
	)

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv); err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHintf("Invoice number %s already exists", inv.InvoiceNumber).
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithOp(err, "create invoice")
		}
		return r.insertLineItems(ctx, inv.LineItems)
	})
}

func (r *invoiceRepository) insertLineItems(ctx context.Context, items []*invoice.LineItem) error {
	query := `
		INSERT INTO invoice_line_items (` + lineItemColumns + `)
		VALUES (
			:id, :invoice_id, :tenant_id, :position, :item_type, :description, :quantity, :unit_price,
			:discount, :tax_rate, :line_total, :tax_amount, :created_at
		)
	`
	for _, item := range items {
		if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, item); err != nil {
			return ierr.WithOp(err, "create invoice line item")
		}
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = $1 AND id = $2`

	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, tenantID, id); err != nil {
		return nil, wrapQueryErr(err, "get invoice", "Invoice not found", map[string]any{"invoice_id": id})
	}
	if err := r.loadLineItems(ctx, tenantID, []*invoice.Invoice{&inv}); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, tenantID string, invoices []*invoice.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	ids := lo.Map(invoices, func(inv *invoice.Invoice, _ int) string { return inv.ID })
	query := `SELECT ` + lineItemColumns + ` FROM invoice_line_items
		WHERE tenant_id = $1 AND invoice_id = ANY($2)
		ORDER BY invoice_id, position`

	var items []*invoice.LineItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, tenantID, pq.Array(ids)); err != nil {
		return ierr.WithOp(err, "list invoice line items")
	}

	byInvoice := lo.GroupBy(items, func(item *invoice.LineItem) string { return item.InvoiceID })
	for _, inv := range invoices {
		inv.LineItems = byInvoice[inv.ID]
		if inv.LineItems == nil {
			inv.LineItems = []*invoice.LineItem{}
		}
	}
	return nil
}

func (r *invoiceRepository) applyFilter(tenantID string, filter *types.InvoiceFilter) *whereBuilder {
	w := newTenantWhere(tenantID)
	if filter == nil {
		return w
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(lo.Map(filter.Statuses, func(s types.InvoiceStatus, _ int) string { return string(s) })))
	}
	if filter.SubscriptionID != "" {
		w.add("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.DueBefore != nil {
		w.add("due_date < ?", *filter.DueBefore)
	}
	return w
}

func (r *invoiceRepository) List(ctx context.Context, tenantID string, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = types.NewInvoiceFilter()
	}
	w := r.applyFilter(tenantID, filter)
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + w.sql()
	query += w.page("created_at", filter.QueryFilter)

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, w.args...); err != nil {
		return nil, ierr.WithOp(err, "list invoices")
	}
	if err := r.loadLineItems(ctx, tenantID, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) Count(ctx context.Context, tenantID string, filter *types.InvoiceFilter) (int, error) {
	w := r.applyFilter(tenantID, filter)
	query := `SELECT COUNT(*) FROM invoices` + w.sql()

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, w.args...); err != nil {
		return 0, ierr.WithOp(err, "count invoices")
	}
	return count, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice, replaceLines bool) error {
	query := `
		UPDATE invoices
		SET status = :status,
			subtotal = :subtotal,
			tax_amount = :tax_amount,
			discount_amount = :discount_amount,
			total_amount = :total_amount,
			description = :description,
			due_date = :due_date,
			sent_at = :sent_at,
			paid_at = :paid_at,
			cancelled_at = :cancelled_at,
			written_off_at = :written_off_at,
			metadata = :metadata,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE tenant_id = :tenant_id AND id = :id AND version = :version
	`

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv)
		if err != nil {
			return ierr.WithOp(err, "update invoice")
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ierr.NewError("invoice version conflict").
				WithHint("Invoice was modified concurrently, please retry").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"version":    inv.Version,
				}).
				Mark(ierr.ErrVersionConflict)
		}

		if replaceLines {
			if _, err := r.db.GetQuerier(ctx).ExecContext(ctx,
				`DELETE FROM invoice_line_items WHERE tenant_id = $1 AND invoice_id = $2`,
				inv.TenantID, inv.ID,
			); err != nil {
				return ierr.WithOp(err, "delete invoice line items")
			}
			if err := r.insertLineItems(ctx, inv.LineItems); err != nil {
				return err
			}
		}

		inv.Version++
		return nil
	})
}

// ApplyPayment increments paid_amount in a single guarded statement, so two
// concurrent allocations can never overwrite each other's increment. The
// status re-derivation runs in the same transaction while the row is locked.
func (r *invoiceRepository) ApplyPayment(ctx context.Context, tenantID, id string, amount decimal.Decimal, currency string, now time.Time) (*invoice.Invoice, error) {
	incrementQuery := `
		UPDATE invoices
		SET paid_amount = paid_amount + $3,
			version = version + 1,
			updated_at = $4
		WHERE tenant_id = $1
			AND id = $2
			AND status = ANY($5)
			AND currency = $6
			AND total_amount - paid_amount >= $3
		RETURNING ` + invoiceColumns

	openStatuses := pq.Array(lo.Map(types.InvoiceStatusesAcceptingPayment, func(s types.InvoiceStatus, _ int) string { return string(s) }))

	var inv invoice.Invoice
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)
		if err := q.GetContext(ctx, &inv, incrementQuery, tenantID, id, amount, now, openStatuses, currency); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.diagnoseRejectedPayment(ctx, tenantID, id, amount, currency)
			}
			return ierr.WithOp(err, "apply invoice payment")
		}

		if !inv.ApplyDerivedStatus(now) {
			return nil
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE invoices SET status = $3, paid_at = $4 WHERE tenant_id = $1 AND id = $2`,
			tenantID, id, inv.Status, inv.PaidAt,
		); err != nil {
			return ierr.WithOp(err, "update invoice status")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.loadLineItems(ctx, tenantID, []*invoice.Invoice{&inv}); err != nil {
		return nil, err
	}
	return &inv, nil
}

// diagnoseRejectedPayment explains why the guarded increment matched no row
func (r *invoiceRepository) diagnoseRejectedPayment(ctx context.Context, tenantID, id string, amount decimal.Decimal, currency string) error {
	var row struct {
		Status   types.InvoiceStatus `db:"status"`
		Currency string              `db:"currency"`
		Balance  decimal.Decimal     `db:"balance"`
	}
	err := r.db.GetQuerier(ctx).GetContext(ctx, &row,
		`SELECT status, currency, total_amount - paid_amount AS balance FROM invoices WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return wrapQueryErr(err, "get invoice", "Invoice not found", map[string]any{"invoice_id": id})
	}
	return invoice.PaymentRejection(id, row.Status, row.Currency, row.Balance, amount, currency)
}

func (r *invoiceRepository) ListOverdueCandidates(ctx context.Context, tenantID string, now time.Time) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE tenant_id = $1
			AND status = ANY($2)
			AND due_date < $3
			AND total_amount > paid_amount
		ORDER BY due_date ASC`

	statuses := pq.Array([]string{string(types.InvoiceStatusOpen)})

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, tenantID, statuses, now); err != nil {
		return nil, ierr.WithOp(err, "list overdue invoices")
	}
	return invoices, nil
}
