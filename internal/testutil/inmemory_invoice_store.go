package testutil

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InMemoryInvoiceStore implements invoice.Repository. ApplyPayment holds the
// store lock across the guarded increment like the single UPDATE statement.
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore(cloneInvoice),
	}
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	c := *inv
	c.Metadata = cloneMetadata(inv.Metadata)
	c.LineItems = lo.Map(inv.LineItems, func(item *invoice.LineItem, _ int) *invoice.LineItem {
		li := *item
		return &li
	})
	return &c
}

func invoiceFilterFn(tenantID string, f *types.InvoiceFilter) FilterFunc[*invoice.Invoice] {
	return func(inv *invoice.Invoice) bool {
		if inv.TenantID != tenantID {
			return false
		}
		if f == nil {
			return true
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, inv.Status) {
			return false
		}
		if f.SubscriptionID != "" && lo.FromPtr(inv.SubscriptionID) != f.SubscriptionID {
			return false
		}
		if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
			return false
		}
		return true
	}
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	inserted := s.Insert(ctx, inv.ID, inv, func(existing *invoice.Invoice) bool {
		return existing.TenantID == inv.TenantID && existing.InvoiceNumber == inv.InvoiceNumber
	})
	if !inserted {
		return ierr.NewError("invoice already exists").
			WithHintf("Invoice number %s already exists", inv.InvoiceNumber).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.TenantID != tenantID {
		return nil, notFound(id)
	}
	return inv, nil
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, tenantID string, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = types.NewInvoiceFilter()
	}
	return s.InMemoryStore.List(ctx, filter.QueryFilter, invoiceFilterFn(tenantID, filter), func(i, j *invoice.Invoice) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}), nil
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, tenantID string, filter *types.InvoiceFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, invoiceFilterFn(tenantID, filter)), nil
}

// Update never writes paid_amount, only ApplyPayment moves it
func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice, replaceLines bool) error {
	_, err := s.Mutate(ctx, inv.ID, func(current *invoice.Invoice) (*invoice.Invoice, error) {
		if current.TenantID != inv.TenantID || current.Version != inv.Version {
			return nil, ierr.NewError("invoice version conflict").
				WithHint("Invoice was modified concurrently, please retry").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"version":    inv.Version,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		next := cloneInvoice(inv)
		next.PaidAmount = current.PaidAmount
		if !replaceLines {
			next.LineItems = current.LineItems
		}
		next.Version++
		return next, nil
	})
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}

func (s *InMemoryInvoiceStore) ApplyPayment(ctx context.Context, tenantID, id string, amount decimal.Decimal, currency string, now time.Time) (*invoice.Invoice, error) {
	return s.Mutate(ctx, id, func(current *invoice.Invoice) (*invoice.Invoice, error) {
		if current.TenantID != tenantID {
			return nil, notFound(id)
		}
		if err := invoice.PaymentRejection(id, current.Status, current.Currency, current.Balance(), amount, currency); err != nil {
			return nil, err
		}
		current.PaidAmount = current.PaidAmount.Add(amount)
		current.Version++
		current.UpdatedAt = now
		current.ApplyDerivedStatus(now)
		return current, nil
	})
}

func (s *InMemoryInvoiceStore) ListOverdueCandidates(ctx context.Context, tenantID string, now time.Time) ([]*invoice.Invoice, error) {
	return s.InMemoryStore.List(ctx, nil, func(inv *invoice.Invoice) bool {
		return inv.TenantID == tenantID &&
			inv.Status == types.InvoiceStatusOpen &&
			inv.DueDate.Before(now) &&
			inv.Balance().IsPositive()
	}, func(i, j *invoice.Invoice) bool {
		return i.DueDate.Before(j.DueDate)
	}), nil
}
