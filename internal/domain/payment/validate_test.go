package payment

import (
	"testing"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllocations(t *testing.T) {
	amount := decimal.NewFromInt(100)

	require.NoError(t, ValidateAllocations(amount, nil))
	require.NoError(t, ValidateAllocations(amount, []*Allocation{
		{InvoiceID: "inv_1", Amount: decimal.NewFromInt(60)},
		{InvoiceID: "inv_2", Amount: decimal.NewFromInt(40)},
	}))
	require.NoError(t, ValidateAllocations(amount, []*Allocation{
		{InvoiceID: "inv_1", Amount: decimal.Zero},
	}))

	cases := map[string][]*Allocation{
		"sum exceeds amount": {
			{InvoiceID: "inv_1", Amount: decimal.NewFromInt(60)},
			{InvoiceID: "inv_2", Amount: decimal.RequireFromString("40.01")},
		},
		"negative": {{InvoiceID: "inv_1", Amount: decimal.NewFromInt(-1)}},
		"duplicate invoice": {
			{InvoiceID: "inv_1", Amount: decimal.NewFromInt(10)},
			{InvoiceID: "inv_1", Amount: decimal.NewFromInt(10)},
		},
		"missing invoice": {{Amount: decimal.NewFromInt(10)}},
	}
	for name, allocs := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateAllocations(amount, allocs)
			require.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
		})
	}
}

func TestPaymentAmounts(t *testing.T) {
	p := &Payment{
		Amount:       decimal.RequireFromString("110.00"),
		Fee:          decimal.RequireFromString("3.49"),
		RefundAmount: decimal.RequireFromString("30.00"),
		Currency:     "usd",
		Method:       types.PaymentMethodTypeCard,
	}
	assert.Equal(t, "106.51", p.NetAmount().StringFixed(2))
	assert.Equal(t, "80.00", p.RefundableAmount().StringFixed(2))
	require.NoError(t, p.Validate())

	p.Fee = decimal.NewFromInt(200)
	assert.True(t, ierr.IsValidation(p.Validate()))
}

func TestPaymentInvoiceLinkMustBeAllocated(t *testing.T) {
	linked := "inv_1"
	p := &Payment{
		InvoiceID: &linked,
		Amount:    decimal.NewFromInt(100),
		Currency:  "usd",
		Method:    types.PaymentMethodTypeCash,
		Allocations: []*Allocation{
			{InvoiceID: "inv_2", Amount: decimal.NewFromInt(100)},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	p.Allocations = append(p.Allocations, &Allocation{InvoiceID: "inv_1", Amount: decimal.Zero})
	require.NoError(t, p.Validate())

	// without explicit allocations the link alone decides
	p.Allocations = nil
	require.NoError(t, p.Validate())
}
