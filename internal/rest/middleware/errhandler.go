package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as an ierr.ErrorResponse.
// 5xx responses carry a generic message and are reported to Sentry.
func ErrorHandler(sentrySvc *sentry.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		ctx := c.Request.Context()
		response := ierr.NewErrorResponse(getDisplayMessage(err), types.GetRequestID(ctx), getSafeDetails(err))

		if status >= http.StatusInternalServerError {
			log.Errorw("request failed",
				"error", err,
				"path", c.Request.URL.Path,
				"tenant_id", types.GetTenantID(ctx),
				"request_id", types.GetRequestID(ctx),
			)
			sentrySvc.CaptureException(ctx, err)
			response.Error.Display = "An unexpected error occurred"
			response.Error.Details = nil
		}

		if status == http.StatusTooManyRequests {
			if retryAfter, ok := response.Error.Details["retry_after_seconds"]; ok {
				c.Header(types.HeaderRetryAfter, fmt.Sprint(retryAfter))
			}
		}

		c.JSON(status, response)
	}
}

func getDisplayMessage(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		// GetAllHints is a post-order traversal, the first non-empty hint is the outermost
		for _, hint := range hints {
			if hint = strings.TrimSpace(hint); hint != "" {
				return hint
			}
		}
	}

	return "An unexpected error occurred"
}

func getSafeDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			jsonStr, ok := strings.CutPrefix(payload, "__json__:")
			if !ok {
				continue
			}
			var jsonDetails map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &jsonDetails); err == nil {
				for k, v := range jsonDetails {
					details[k] = v
				}
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
