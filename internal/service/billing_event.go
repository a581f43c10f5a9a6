package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

// BillingEventService is the append-only log of billing facts. Events are
// written after the mutation they describe has committed.
type BillingEventService interface {
	Append(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any) (*billingevent.BillingEvent, error)
	// AppendUnique reports whether the event was inserted. A second event with
	// the same dedup key for the tenant is silently skipped.
	AppendUnique(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any, dedupKey string) (bool, error)
	// Emit appends and only logs failures
	Emit(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any)
	MarkProcessed(ctx context.Context, tenantID, id string) (*dto.BillingEventResponse, error)
	ListEvents(ctx context.Context, tenantID string, filter *types.BillingEventFilter) (*dto.ListBillingEventsResponse, error)
	// HandleMessage consumes a published event
	HandleMessage(msg *message.Message) error
}

type billingEventService struct {
	ServiceParams
}

func NewBillingEventService(params ServiceParams) BillingEventService {
	return &billingEventService{ServiceParams: params}
}

func (s *billingEventService) Append(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any) (*billingevent.BillingEvent, error) {
	if err := eventType.Validate(); err != nil {
		return nil, err
	}

	e := billingevent.New(tenantID, eventType, payload)
	if err := s.BillingEventRepo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.publish(ctx, e)
	return e, nil
}

func (s *billingEventService) AppendUnique(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any, dedupKey string) (bool, error) {
	if err := eventType.Validate(); err != nil {
		return false, err
	}
	if dedupKey == "" {
		return false, ierr.NewError("empty dedup key").
			WithHint("A dedup key is required").
			Mark(ierr.ErrValidation)
	}

	e := billingevent.New(tenantID, eventType, payload)
	e.DedupKey = lo.ToPtr(dedupKey)

	inserted, err := s.BillingEventRepo.CreateUnique(ctx, e)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.Logger.Debugw("skipped duplicate billing event",
			"tenant_id", tenantID,
			"event_type", eventType,
			"dedup_key", dedupKey,
		)
		return false, nil
	}

	s.publish(ctx, e)
	return true, nil
}

func (s *billingEventService) Emit(ctx context.Context, tenantID string, eventType types.BillingEventType, payload map[string]any) {
	if _, err := s.Append(ctx, tenantID, eventType, payload); err != nil {
		s.Logger.Errorw("failed to append billing event",
			"tenant_id", tenantID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func (s *billingEventService) MarkProcessed(ctx context.Context, tenantID, id string) (*dto.BillingEventResponse, error) {
	e, err := s.BillingEventRepo.MarkProcessed(ctx, tenantID, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &dto.BillingEventResponse{BillingEvent: e}, nil
}

func (s *billingEventService) ListEvents(ctx context.Context, tenantID string, filter *types.BillingEventFilter) (*dto.ListBillingEventsResponse, error) {
	if filter == nil {
		filter = types.NewBillingEventFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	events, err := s.BillingEventRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.BillingEventRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(events, func(e *billingevent.BillingEvent, _ int) *dto.BillingEventResponse {
		return &dto.BillingEventResponse{BillingEvent: e}
	})
	resp := types.NewListResponse(items, count, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *billingEventService) HandleMessage(msg *message.Message) error {
	var e billingevent.BillingEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return ierr.WithError(err).
			WithHint("Malformed billing event message").
			Mark(ierr.ErrValidation)
	}

	s.Logger.Infow("billing event received",
		"event_id", e.ID,
		"tenant_id", e.TenantID,
		"event_type", e.EventType,
		"message_uuid", msg.UUID,
	)

	if !s.Config.Event.AutoAck {
		return nil
	}
	_, err := s.BillingEventRepo.MarkProcessed(msg.Context(), e.TenantID, e.ID, time.Now().UTC())
	return err
}

// publish fans the event out. The row is already durable, so failures are logged.
func (s *billingEventService) publish(ctx context.Context, e *billingevent.BillingEvent) {
	if s.EventPublisher == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		s.Logger.Errorw("failed to marshal billing event", "event_id", e.ID, "error", err)
		return
	}

	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("tenant_id", e.TenantID)
	msg.Metadata.Set("event_type", string(e.EventType))
	if requestID := types.GetRequestID(ctx); requestID != "" {
		msg.Metadata.Set("request_id", requestID)
	}

	if err := s.EventPublisher.Publish(ctx, s.Config.Event.Topic, msg); err != nil {
		s.Logger.Errorw("failed to publish billing event",
			"event_id", e.ID,
			"tenant_id", e.TenantID,
			"event_type", e.EventType,
			"error", err,
		)
	}
}
