package v1

import (
	"net/http"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

type BillingEventHandler struct {
	service service.BillingEventService
	log     *logger.Logger
}

func NewBillingEventHandler(service service.BillingEventService, log *logger.Logger) *BillingEventHandler {
	return &BillingEventHandler{service: service, log: log}
}

// @Summary List billing events
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param filter query types.BillingEventFilter false "Filter"
// @Success 200 {object} dto.ListBillingEventsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /events [get]
func (h *BillingEventHandler) ListEvents(c *gin.Context) {
	filter := types.NewBillingEventFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}
	filter.QueryFilter = defaultQueryFilter(filter.QueryFilter)

	resp, err := h.service.ListEvents(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Mark a billing event processed
// @Description Idempotent, the first processed_at is kept
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Event ID"
// @Success 200 {object} dto.BillingEventResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /events/{id}/processed [post]
func (h *BillingEventHandler) MarkProcessed(c *gin.Context) {
	resp, err := h.service.MarkProcessed(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
