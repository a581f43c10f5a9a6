package postgres

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/logger"
	sentryService "github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/types"
)

// SentryClient opens a Sentry span around every billing transaction, tagged
// with the tenant it runs for
type SentryClient struct {
	client IClient
	sentry *sentryService.Service
	logger *logger.Logger
}

func NewSentryClient(client IClient, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return &SentryClient{
		client: client,
		sentry: sentry,
		logger: logger,
	}
}

func (c *SentryClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"tenant_id":  types.GetTenantID(ctx),
		"request_id": types.GetRequestID(ctx),
	})
	if span == nil {
		return c.client.WithTx(ctx, fn)
	}
	defer span.Finish()

	err := c.client.WithTx(spanCtx, fn)
	if err != nil {
		c.logger.Debugw("transaction rolled back", "tenant_id", types.GetTenantID(ctx), "error", err)
	}
	return err
}
