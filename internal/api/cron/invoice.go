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

// InvoiceHandler handles invoice related cron jobs
type InvoiceHandler struct {
	invoiceService service.InvoiceService
	logger         *logger.Logger
}

func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	logger *logger.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// MarkOverdueInvoices moves open invoices past their due date to overdue
// @Summary Overdue invoice sweep
// @Tags Cron
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SweepRequest false "Sweep options"
// @Success 200 {object} dto.OverdueSweepResponse
// @Router /cron/invoices/overdue [post]
func (h *InvoiceHandler) MarkOverdueInvoices(c *gin.Context) {
	h.logger.Infow("starting overdue invoices cron job", "time", time.Now().UTC().Format(time.RFC3339))

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
		resp, err := h.invoiceService.MarkAllOverdueInvoices(ctx, now)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp := &dto.OverdueSweepResponse{}
	for _, tenantID := range req.TenantIDs {
		resp.TenantsProcessed++
		marked, err := h.invoiceService.MarkOverdueInvoices(ctx, tenantID, now)
		if err != nil {
			h.logger.Errorw("overdue sweep failed for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			resp.Failed++
			continue
		}
		resp.InvoicesMarked += marked
	}

	h.logger.Infow("completed overdue invoices cron job",
		"tenants", resp.TenantsProcessed,
		"invoices_marked", resp.InvoicesMarked,
		"failed", resp.Failed,
	)
	c.JSON(http.StatusOK, resp)
}
