package dto

import (
	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	"github.com/clinicflow/clinicflow/internal/types"
)

type BillingEventResponse struct {
	*billingevent.BillingEvent
}

type ListBillingEventsResponse = types.ListResponse[*BillingEventResponse]
