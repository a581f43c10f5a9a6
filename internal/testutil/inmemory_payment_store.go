package testutil

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/payment"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore(func(p *payment.Payment) *payment.Payment {
			c := *p
			c.Metadata = cloneMetadata(p.Metadata)
			c.Allocations = lo.Map(p.Allocations, func(a *payment.Allocation, _ int) *payment.Allocation {
				ac := *a
				return &ac
			})
			return &c
		}),
	}
}

func paymentFilterFn(tenantID string, f *types.PaymentFilter) FilterFunc[*payment.Payment] {
	return func(p *payment.Payment) bool {
		if p.TenantID != tenantID {
			return false
		}
		if f == nil {
			return true
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, p.Status) {
			return false
		}
		if f.InvoiceID != "" {
			linked := lo.FromPtr(p.InvoiceID) == f.InvoiceID || lo.ContainsBy(p.Allocations, func(a *payment.Allocation) bool {
				return a.InvoiceID == f.InvoiceID
			})
			if !linked {
				return false
			}
		}
		return true
	}
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	inserted := s.Insert(ctx, p.ID, p, func(existing *payment.Payment) bool {
		return existing.TenantID == p.TenantID && existing.PaymentNumber == p.PaymentNumber
	})
	if !inserted {
		return ierr.NewError("payment already exists").
			WithHintf("Payment number %s already exists", p.PaymentNumber).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, tenantID, id string) (*payment.Payment, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, notFound(id)
	}
	return p, nil
}

func (s *InMemoryPaymentStore) List(ctx context.Context, tenantID string, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	return s.InMemoryStore.List(ctx, filter.QueryFilter, paymentFilterFn(tenantID, filter), func(i, j *payment.Payment) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}), nil
}

func (s *InMemoryPaymentStore) Count(ctx context.Context, tenantID string, filter *types.PaymentFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, paymentFilterFn(tenantID, filter)), nil
}

func (s *InMemoryPaymentStore) TransitionStatus(ctx context.Context, tenantID, id string, change payment.StatusChange) (*payment.Payment, error) {
	return s.Mutate(ctx, id, func(current *payment.Payment) (*payment.Payment, error) {
		if current.TenantID != tenantID {
			return nil, notFound(id)
		}
		if !lo.Contains(change.From, current.Status) {
			return nil, payment.TransitionRejection(current, change)
		}
		current.ApplyStatusChange(change)
		return current, nil
	})
}

func (s *InMemoryPaymentStore) Refund(ctx context.Context, tenantID, id string, amount decimal.Decimal, reason string, now time.Time) (*payment.Payment, error) {
	return s.Mutate(ctx, id, func(current *payment.Payment) (*payment.Payment, error) {
		if current.TenantID != tenantID {
			return nil, notFound(id)
		}
		if err := payment.RefundRejection(current, amount); err != nil {
			return nil, err
		}
		current.ApplyRefund(amount, reason, now)
		return current, nil
	})
}
