package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	"github.com/clinicflow/clinicflow/internal/domain/payment"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return postgres.NewFromSqlx(sqlx.NewDb(mockDB, "postgres"), logger.NewNoopLogger()), mock
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func invoiceRow(status types.InvoiceStatus, total, paid string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "invoice_number", "subscription_id", "status", "currency", "subtotal", "tax_amount",
		"discount_amount", "total_amount", "paid_amount", "description", "due_date", "sent_at", "paid_at", "cancelled_at",
		"written_off_at", "metadata", "version", "created_at", "updated_at", "created_by", "updated_by",
	}).AddRow(
		"inv_1", "tenant_a", "INV-1", nil, string(status), "USD", total, "0",
		"0", total, paid, "", testNow.AddDate(0, 0, 30), nil, nil, nil,
		nil, []byte(`{}`), 2, testNow, testNow, "", "",
	)
}

func paymentRow(status types.PaymentStatus, amount, refunded string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "payment_number", "invoice_id", "amount", "currency", "fee", "payment_method",
		"payment_status", "refund_amount", "refund_reason", "refunded_at", "gateway_reference", "failure_reason",
		"succeeded_at", "failed_at", "metadata", "created_at", "updated_at", "created_by", "updated_by",
	}).AddRow(
		"pay_1", "tenant_a", "PAY-1", nil, amount, "USD", "0", "card",
		string(status), refunded, nil, nil, nil, nil,
		testNow, nil, []byte(`{}`), testNow, testNow, "", "",
	)
}

func emptyAllocations() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "payment_id", "invoice_id", "tenant_id", "amount", "created_at"})
}

func TestWhereBuilder(t *testing.T) {
	w := newTenantWhere("tenant_a")
	w.add("status = ANY(?)", pq.Array([]string{"open"}))
	w.add("(invoice_id = ? OR id = ?)", "inv_1", "inv_2")

	assert.Equal(t, " WHERE tenant_id = $1 AND status = ANY($2) AND (invoice_id = $3 OR id = $4)", w.sql())

	page := w.page("created_at", &types.QueryFilter{Limit: lo.ToPtr(10), Offset: lo.ToPtr(20), Order: lo.ToPtr(types.OrderAsc)})
	assert.Equal(t, " ORDER BY created_at ASC, id ASC LIMIT $5 OFFSET $6", page)
	assert.Equal(t, []interface{}{"tenant_a", pq.Array([]string{"open"}), "inv_1", "inv_2", 10, 20}, w.args)
}

func TestSubscriptionUpdate_VersionConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNoopLogger())

	sub := &subscription.Subscription{ID: "subs_1", Version: 3}
	sub.TenantID = "tenant_a"

	mock.ExpectExec(`UPDATE subscriptions`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, 3, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionUpdate_BumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNoopLogger())

	sub := &subscription.Subscription{ID: "subs_1", Version: 3}
	sub.TenantID = "tenant_a"

	mock.ExpectExec(`UPDATE subscriptions`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), sub))
	assert.Equal(t, 4, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionGet_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`SELECT .* FROM subscriptions WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant_b", "subs_1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "tenant_b", "subs_1")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceApplyPayment_Closed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db, logger.NewNoopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices\s+SET paid_amount = paid_amount \+ \$3`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT status, currency, total_amount - paid_amount AS balance FROM invoices`).
		WithArgs("tenant_a", "inv_1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "currency", "balance"}).AddRow("cancelled", "USD", "100"))
	mock.ExpectRollback()

	_, err := repo.ApplyPayment(context.Background(), "tenant_a", "inv_1", decimal.NewFromInt(10), "USD", testNow)
	require.Error(t, err)
	assert.True(t, ierr.IsInvoiceClosed(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceApplyPayment_Overpayment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db, logger.NewNoopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT status, currency`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "currency", "balance"}).AddRow("open", "USD", "5"))
	mock.ExpectRollback()

	_, err := repo.ApplyPayment(context.Background(), "tenant_a", "inv_1", decimal.NewFromInt(10), "USD", testNow)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceApplyPayment_Paid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db, logger.NewNoopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices`).WillReturnRows(invoiceRow(types.InvoiceStatusOpen, "100", "100"))
	mock.ExpectExec(`UPDATE invoices SET status = \$3, paid_at = \$4`).
		WithArgs("tenant_a", "inv_1", string(types.InvoiceStatusPaid), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT .* FROM invoice_line_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inv, err := repo.ApplyPayment(context.Background(), "tenant_a", "inv_1", decimal.NewFromInt(40), "USD", testNow)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.Balance().IsZero())
	require.NotNil(t, inv.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRefund_ExceedsPayment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`UPDATE payments\s+SET refund_amount = refund_amount \+ \$3`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM payments WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnRows(paymentRow(types.PaymentStatusPartiallyRefunded, "100", "70"))
	mock.ExpectQuery(`SELECT .* FROM payment_allocations`).WillReturnRows(emptyAllocations())

	_, err := repo.Refund(context.Background(), "tenant_a", "pay_1", decimal.NewFromInt(40), "duplicate charge", testNow)
	require.Error(t, err)
	assert.True(t, ierr.IsRefundExceedsPayment(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRefund_NotRefundable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`UPDATE payments`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM payments`).WillReturnRows(paymentRow(types.PaymentStatusPending, "100", "0"))
	mock.ExpectQuery(`SELECT .* FROM payment_allocations`).WillReturnRows(emptyAllocations())

	_, err := repo.Refund(context.Background(), "tenant_a", "pay_1", decimal.NewFromInt(10), "", testNow)
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidOperation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentTransition_Rejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`UPDATE payments\s+SET payment_status = \$3`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM payments`).WillReturnRows(paymentRow(types.PaymentStatusSucceeded, "100", "0"))
	mock.ExpectQuery(`SELECT .* FROM payment_allocations`).WillReturnRows(emptyAllocations())

	_, err := repo.TransitionStatus(context.Background(), "tenant_a", "pay_1", paymentStatusChange(types.PaymentStatusFailed))
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidOperation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingEventCreateUnique(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingEventRepository(db, logger.NewNoopLogger())

	event := billingevent.New("tenant_a", types.BillingEventUsageLimitExceeded, map[string]any{"metric": "patients"})
	event.DedupKey = lo.ToPtr("usage_limit_exceeded:patients:2025-03-01T00:00:00Z")

	mock.ExpectExec(`INSERT INTO billing_events .* ON CONFLICT \(tenant_id, dedup_key\) WHERE dedup_key IS NOT NULL DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO billing_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.CreateUnique(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.CreateUnique(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageAggregate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsageRepository(db, logger.NewNoopLogger())

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(metric_value\), 0\)`).
		WithArgs("tenant_a", string(types.MetricTypePatients), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("42"))

	total, err := repo.Aggregate(context.Background(), "tenant_a", types.MetricTypePatients, from, to)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(total))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func paymentStatusChange(to types.PaymentStatus) payment.StatusChange {
	return payment.StatusChange{
		From: types.PaymentStatusesOpen,
		To:   to,
		At:   testNow,
	}
}
