package cron

import (
	"net/http"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler handles subscription related cron jobs
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

func NewSubscriptionHandler(
	subscriptionService service.SubscriptionService,
	logger *logger.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// ProcessLifecycles applies due trial conversions, renewals, expiries and
// grace period suspensions
// @Summary Subscription lifecycle sweep
// @Tags Cron
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SweepRequest false "Sweep options"
// @Success 200 {object} dto.LifecycleSweepResponse
// @Router /cron/subscriptions/lifecycle [post]
func (h *SubscriptionHandler) ProcessLifecycles(c *gin.Context) {
	h.logger.Infow("starting subscription lifecycle cron job", "time", time.Now().UTC().Format(time.RFC3339))

	var req dto.SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	ctx := c.Request.Context()
	now := req.Now()

	if len(req.TenantIDs) == 0 {
		resp, err := h.subscriptionService.ProcessAllLifecycles(ctx, now)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp := &dto.LifecycleSweepResponse{}
	for _, tenantID := range req.TenantIDs {
		result, err := h.subscriptionService.ProcessLifecycle(ctx, tenantID, now)
		if err != nil {
			h.logger.Errorw("lifecycle sweep failed for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			resp.TenantsProcessed++
			resp.Failed++
			continue
		}
		resp.Add(result)
	}

	h.logger.Infow("completed subscription lifecycle cron job",
		"tenants", resp.TenantsProcessed,
		"failed", resp.Failed,
	)
	c.JSON(http.StatusOK, resp)
}
