package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/payment"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

const paymentColumns = `id, tenant_id, payment_number, invoice_id, amount, currency, fee, payment_method,
	payment_status, refund_amount, refund_reason, refunded_at, gateway_reference, failure_reason,
	succeeded_at, failed_at, metadata, created_at, updated_at, created_by, updated_by`

const allocationColumns = `id, payment_id, invoice_id, tenant_id, amount, created_at`

func paymentStatuses(statuses []types.PaymentStatus) interface{} {
	return pq.Array(lo.Map(statuses, func(s types.PaymentStatus, _ int) string { return string(s) }))
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (
			:id, :tenant_id, :payment_number, :invoice_id, :amount, :currency, :fee, :payment_method,
			:payment_status, :refund_amount, :refund_reason, :refunded_at, :gateway_reference, :failure_reason,
			:succeeded_at, :failed_at, :metadata, :created_at, :updated_at, :created_by, :updated_by
		)
	`
	allocationQuery := `
		INSERT INTO payment_allocations (` + allocationColumns + `)
		VALUES (:id, :payment_id, :invoice_id, :tenant_id, :amount, :created_at)
	`

	r.logger.Debugw("creating payment",
		"payment_id", p.ID,
		"tenant_id", p.TenantID,
		"amount", p.Amount,
		"allocations", len(p.Allocations),
	)

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHintf("Payment number %s already exists", p.PaymentNumber).
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithOp(err, "create payment")
		}
		for _, a := range p.Allocations {
			if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, allocationQuery, a); err != nil {
				return ierr.WithOp(err, "create payment allocation")
			}
		}
		return nil
	})
}

func (r *paymentRepository) Get(ctx context.Context, tenantID, id string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1 AND id = $2`

	var p payment.Payment
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, tenantID, id); err != nil {
		return nil, wrapQueryErr(err, "get payment", "Payment not found", map[string]any{"payment_id": id})
	}
	if err := r.loadAllocations(ctx, tenantID, []*payment.Payment{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) loadAllocations(ctx context.Context, tenantID string, payments []*payment.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	ids := lo.Map(payments, func(p *payment.Payment, _ int) string { return p.ID })
	query := `SELECT ` + allocationColumns + ` FROM payment_allocations
		WHERE tenant_id = $1 AND payment_id = ANY($2)
		ORDER BY payment_id, created_at, id`

	var allocations []*payment.Allocation
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &allocations, query, tenantID, pq.Array(ids)); err != nil {
		return ierr.WithOp(err, "list payment allocations")
	}

	byPayment := lo.GroupBy(allocations, func(a *payment.Allocation) string { return a.PaymentID })
	for _, p := range payments {
		p.Allocations = byPayment[p.ID]
		if p.Allocations == nil {
			p.Allocations = []*payment.Allocation{}
		}
	}
	return nil
}

func (r *paymentRepository) applyFilter(tenantID string, filter *types.PaymentFilter) *whereBuilder {
	w := newTenantWhere(tenantID)
	if filter == nil {
		return w
	}
	if len(filter.Statuses) > 0 {
		w.add("payment_status = ANY(?)", paymentStatuses(filter.Statuses))
	}
	if filter.InvoiceID != "" {
		w.add("(invoice_id = ? OR id IN (SELECT payment_id FROM payment_allocations WHERE tenant_id = ? AND invoice_id = ?))",
			filter.InvoiceID, tenantID, filter.InvoiceID)
	}
	return w
}

func (r *paymentRepository) List(ctx context.Context, tenantID string, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	w := r.applyFilter(tenantID, filter)
	query := `SELECT ` + paymentColumns + ` FROM payments` + w.sql()
	query += w.page("created_at", filter.QueryFilter)

	var payments []*payment.Payment
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &payments, query, w.args...); err != nil {
		return nil, ierr.WithOp(err, "list payments")
	}
	if err := r.loadAllocations(ctx, tenantID, payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) Count(ctx context.Context, tenantID string, filter *types.PaymentFilter) (int, error) {
	w := r.applyFilter(tenantID, filter)
	query := `SELECT COUNT(*) FROM payments` + w.sql()

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, w.args...); err != nil {
		return 0, ierr.WithOp(err, "count payments")
	}
	return count, nil
}

func (r *paymentRepository) TransitionStatus(ctx context.Context, tenantID, id string, change payment.StatusChange) (*payment.Payment, error) {
	query := `
		UPDATE payments
		SET payment_status = $3,
			gateway_reference = COALESCE($4, gateway_reference),
			failure_reason = CASE WHEN $3 = 'failed' THEN $5 ELSE failure_reason END,
			succeeded_at = CASE WHEN $3 = 'succeeded' THEN $6 ELSE succeeded_at END,
			failed_at = CASE WHEN $3 = 'failed' THEN $6 ELSE failed_at END,
			updated_at = $6
		WHERE tenant_id = $1 AND id = $2 AND payment_status = ANY($7)
		RETURNING ` + paymentColumns

	var p payment.Payment
	err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query,
		tenantID, id, change.To, change.GatewayReference, change.FailureReason, change.At, paymentStatuses(change.From))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithOp(err, "transition payment status")
		}
		current, getErr := r.Get(ctx, tenantID, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, payment.TransitionRejection(current, change)
	}

	if err := r.loadAllocations(ctx, tenantID, []*payment.Payment{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// Refund accumulates refund_amount in one conditional statement. The status
// becomes refunded once the whole amount has been returned.
func (r *paymentRepository) Refund(ctx context.Context, tenantID, id string, amount decimal.Decimal, reason string, now time.Time) (*payment.Payment, error) {
	query := `
		UPDATE payments
		SET refund_amount = refund_amount + $3,
			payment_status = CASE WHEN refund_amount + $3 >= amount THEN 'refunded' ELSE 'partially_refunded' END,
			refund_reason = $4,
			refunded_at = $5,
			updated_at = $5
		WHERE tenant_id = $1
			AND id = $2
			AND payment_status = ANY($6)
			AND amount - refund_amount >= $3
			AND $3 > 0
		RETURNING ` + paymentColumns

	var p payment.Payment
	err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query,
		tenantID, id, amount, reason, now, paymentStatuses(types.PaymentStatusesRefundable))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithOp(err, "refund payment")
		}
		current, getErr := r.Get(ctx, tenantID, id)
		if getErr != nil {
			return nil, getErr
		}
		if rejection := payment.RefundRejection(current, amount); rejection != nil {
			return nil, rejection
		}
		return nil, ierr.NewError("refund not applied").
			WithHint("Payment was modified concurrently, please retry").
			WithReportableDetails(map[string]any{"payment_id": id}).
			Mark(ierr.ErrVersionConflict)
	}

	if err := r.loadAllocations(ctx, tenantID, []*payment.Payment{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}
