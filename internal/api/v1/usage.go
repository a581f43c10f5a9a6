package v1

import (
	"net/http"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	service service.UsageService
	log     *logger.Logger
}

func NewUsageHandler(service service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{
		service: service,
		log:     log,
	}
}

// @Summary Record usage
// @Description Store a usage sample. The period defaults to the current subscription period.
// @Tags Usage
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param usage body dto.RecordUsageRequest true "Usage sample"
// @Success 201 {object} dto.UsageResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.RecordUsageMetric(c.Request.Context(), tenantID(c), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary List usage samples
// @Tags Usage
// @Produce json
// @Security BearerAuth
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param filter query types.UsageFilter false "Filter"
// @Success 200 {object} dto.ListUsageResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage [get]
func (h *UsageHandler) ListUsage(c *gin.Context) {
	filter := types.NewUsageFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}
	filter.QueryFilter = defaultQueryFilter(filter.QueryFilter)

	resp, err := h.service.ListUsage(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Check usage against the plan limit
// @Tags Usage
// @Produce json
// @Security BearerAuth
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param metricType path string true "Metric type"
// @Success 200 {object} dto.UsageLimitResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /limits/{metricType} [get]
func (h *UsageHandler) CheckUsageLimits(c *gin.Context) {
	metric := types.MetricType(c.Param("metricType"))

	resp, err := h.service.CheckUsageLimits(c.Request.Context(), tenantID(c), metric)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
