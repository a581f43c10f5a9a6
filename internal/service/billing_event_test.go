package service

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type BillingEventServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BillingEventService
	tenant  *tenant.Tenant
}

func TestBillingEventService(t *testing.T) {
	suite.Run(t, new(BillingEventServiceSuite))
}

func (s *BillingEventServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBillingEventService(newTestServiceParams(&s.BaseServiceTestSuite))
	s.tenant = s.CreateTenant("northside", nil)
}

func (s *BillingEventServiceSuite) TestAppendPublishes() {
	e, err := s.service.Append(s.GetContext(), s.tenant.ID, types.BillingEventInvoiceCreated, map[string]any{
		"invoice_id": "inv_1",
	})
	s.Require().NoError(err)
	s.False(e.Processed)
	s.Nil(e.DedupKey)

	msgs := s.GetPublisher().Messages(s.GetConfig().Event.Topic)
	s.Require().Len(msgs, 1)
	msg := msgs[0]
	s.Equal(e.ID, msg.UUID)
	s.Equal(s.tenant.ID, msg.Metadata.Get("tenant_id"))
	s.Equal(string(types.BillingEventInvoiceCreated), msg.Metadata.Get("event_type"))
	s.Equal(types.GetRequestID(s.GetContext()), msg.Metadata.Get("request_id"))

	var decoded billingevent.BillingEvent
	s.Require().NoError(json.Unmarshal(msg.Payload, &decoded))
	s.Equal(e.ID, decoded.ID)
	s.Equal("inv_1", decoded.Payload["invoice_id"])
}

func (s *BillingEventServiceSuite) TestAppendRejectsUnknownType() {
	_, err := s.service.Append(s.GetContext(), s.tenant.ID, "invoice.exploded", nil)
	s.True(ierr.IsValidation(err))
	s.Empty(s.GetPublisher().Messages(s.GetConfig().Event.Topic))
}

func (s *BillingEventServiceSuite) TestPublishFailureKeepsEvent() {
	s.GetPublisher().FailWith(errors.New("broker down"))

	e, err := s.service.Append(s.GetContext(), s.tenant.ID, types.BillingEventPaymentRecorded, nil)
	s.Require().NoError(err)

	list, err := s.service.ListEvents(s.GetContext(), s.tenant.ID, nil)
	s.Require().NoError(err)
	s.Require().Len(list.Items, 1)
	s.Equal(e.ID, list.Items[0].ID)
}

func (s *BillingEventServiceSuite) TestAppendUniqueDeduplicates() {
	key := "usage_limit_exceeded:patients:2026-10-01T00:00:00Z"

	inserted, err := s.service.AppendUnique(s.GetContext(), s.tenant.ID, types.BillingEventUsageLimitExceeded, nil, key)
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.service.AppendUnique(s.GetContext(), s.tenant.ID, types.BillingEventUsageLimitExceeded, nil, key)
	s.Require().NoError(err)
	s.False(inserted)

	// the key is scoped to the tenant
	other := s.CreateTenant("riverside", nil)
	inserted, err = s.service.AppendUnique(s.GetContext(), other.ID, types.BillingEventUsageLimitExceeded, nil, key)
	s.Require().NoError(err)
	s.True(inserted)

	s.Len(s.GetPublisher().Messages(s.GetConfig().Event.Topic), 2)

	_, err = s.service.AppendUnique(s.GetContext(), s.tenant.ID, types.BillingEventUsageLimitExceeded, nil, "")
	s.True(ierr.IsValidation(err))
}

func (s *BillingEventServiceSuite) TestMarkProcessed() {
	e, err := s.service.Append(s.GetContext(), s.tenant.ID, types.BillingEventSubscriptionCreated, nil)
	s.Require().NoError(err)

	first, err := s.service.MarkProcessed(s.GetContext(), s.tenant.ID, e.ID)
	s.Require().NoError(err)
	s.True(first.Processed)
	s.Require().NotNil(first.ProcessedAt)

	second, err := s.service.MarkProcessed(s.GetContext(), s.tenant.ID, e.ID)
	s.Require().NoError(err)
	s.Equal(*first.ProcessedAt, *second.ProcessedAt)

	other := s.CreateTenant("riverside", nil)
	_, err = s.service.MarkProcessed(s.GetContext(), other.ID, e.ID)
	s.True(ierr.IsNotFound(err))
}

func (s *BillingEventServiceSuite) TestListEventsFilters() {
	for _, t := range []types.BillingEventType{
		types.BillingEventInvoiceCreated,
		types.BillingEventInvoiceUpdated,
		types.BillingEventInvoiceUpdated,
	} {
		_, err := s.service.Append(s.GetContext(), s.tenant.ID, t, nil)
		s.Require().NoError(err)
	}

	list, err := s.service.ListEvents(s.GetContext(), s.tenant.ID, &types.BillingEventFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		EventType:   types.BillingEventInvoiceUpdated,
	})
	s.Require().NoError(err)
	s.Len(list.Items, 2)
	s.Equal(2, list.Pagination.Total)

	_, err = s.service.MarkProcessed(s.GetContext(), s.tenant.ID, list.Items[0].ID)
	s.Require().NoError(err)

	pending, err := s.service.ListEvents(s.GetContext(), s.tenant.ID, &types.BillingEventFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		Processed:   lo.ToPtr(false),
	})
	s.Require().NoError(err)
	s.Len(pending.Items, 2)
}

func (s *BillingEventServiceSuite) TestHandleMessage() {
	e, err := s.service.Append(s.GetContext(), s.tenant.ID, types.BillingEventPaymentUpdated, nil)
	s.Require().NoError(err)
	msg := s.GetPublisher().Messages(s.GetConfig().Event.Topic)[0]

	s.GetConfig().Event.AutoAck = false
	s.Require().NoError(s.service.HandleMessage(msg))
	stored, err := s.GetStores().BillingEventRepo.List(s.GetContext(), s.tenant.ID, nil)
	s.Require().NoError(err)
	s.False(stored[0].Processed)

	s.GetConfig().Event.AutoAck = true
	defer func() { s.GetConfig().Event.AutoAck = false }()

	s.Require().NoError(s.service.HandleMessage(msg))
	stored, err = s.GetStores().BillingEventRepo.List(s.GetContext(), s.tenant.ID, nil)
	s.Require().NoError(err)
	s.Equal(e.ID, stored[0].ID)
	s.True(stored[0].Processed)
}

func (s *BillingEventServiceSuite) TestHandleMalformedMessage() {
	err := s.service.HandleMessage(message.NewMessage("bad", []byte("{not json")))
	s.True(ierr.IsValidation(err))
}
