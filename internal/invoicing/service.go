package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/channelsync/orders-backend/internal/orders"
	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/errors"
	"github.com/channelsync/orders-backend/pkg/logger"
	"gorm.io/gorm"
)

// CoordinatorParams groups dependencies for the invoice sync coordinator.
type CoordinatorParams struct {
	Repo     orders.Repository
	Provider Provider
	Logger   *logger.Logger
}

// Coordinator pushes at most one invoice per order and records the outcome
// on the order row, success or failure.
type Coordinator struct {
	repo     orders.Repository
	provider Provider
	logger   *logger.Logger
}

// NewCoordinator builds an invoice sync coordinator.
func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Coordinator{repo: params.Repo, provider: params.Provider, logger: params.Logger}, nil
}

// WithTx returns a coordinator whose bookkeeping writes run on the given
// transaction.
func (c *Coordinator) WithTx(tx *gorm.DB) *Coordinator {
	if tx == nil {
		return c
	}
	return &Coordinator{repo: c.repo.WithTx(tx), provider: c.provider, logger: c.logger}
}

// Outcome reports what a sync attempt did. Err carries the provider
// failure message when the attempt was made and failed; the failure is
// recorded on the order, not propagated as an error.
type Outcome struct {
	Created bool
	Err     string
}

// SyncInvoice attempts an invoice push for the order. Orders that have
// already been attempted are never retried, regardless of the prior
// outcome. The order is mutated in place with the recorded bookkeeping.
func (c *Coordinator) SyncInvoice(ctx context.Context, order *models.CanonicalOrder) (Outcome, error) {
	if order == nil {
		return Outcome{}, errors.New(errors.CodeValidation, "order is required")
	}

	ctx = c.logger.WithExternalOrderID(ctx, order.ExternalOrderID)
	ctx = c.logger.WithMarketplace(ctx, order.MarketplaceName)

	if order.InvoicePushAttempted {
		c.logger.Debug(ctx, "invoice push already attempted, skipping")
		return Outcome{}, nil
	}
	if !c.provider.ShouldCreateInvoice(ctx, order) {
		c.logger.Debug(ctx, "order not eligible for invoice push")
		return Outcome{}, nil
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"invoice_push_attempted": true,
		"invoice_push_date":      now,
	}

	result, pushErr := c.provider.CreateInvoice(ctx, order)
	if pushErr == nil && result == nil {
		pushErr = errors.New(errors.CodeDependency, "provider returned no invoice")
	}

	if pushErr != nil {
		wrapped := errors.Wrap(errors.CodeInvoiceSync, pushErr, "create invoice")
		updates["invoice_push_status"] = enums.InvoicePushStatusFailed
		updates["invoice_push_error"] = wrapped.Error()
		c.applyBookkeeping(ctx, order, updates)
		c.logger.Error(ctx, "invoice push failed", wrapped)
		return Outcome{Err: wrapped.Error()}, nil
	}

	updates["invoice_push_status"] = enums.InvoicePushStatusSuccess
	updates["invoice_id"] = result.InvoiceID
	updates["invoice_number"] = result.InvoiceNumber
	c.applyBookkeeping(ctx, order, updates)

	c.logger.Info(ctx, "invoice pushed")
	return Outcome{Created: true}, nil
}

// applyBookkeeping persists the attempt record and mirrors it onto the
// in-memory order. A bookkeeping write failure never masks the push
// outcome; it is logged and the in-memory state still reflects the
// attempt so the caller cannot re-push within the batch.
func (c *Coordinator) applyBookkeeping(ctx context.Context, order *models.CanonicalOrder, updates map[string]any) {
	order.InvoicePushAttempted = true
	if v, ok := updates["invoice_push_date"].(time.Time); ok {
		order.InvoicePushDate = &v
	}
	if v, ok := updates["invoice_push_status"].(enums.InvoicePushStatus); ok {
		order.InvoicePushStatus = v
	}
	if v, ok := updates["invoice_push_error"].(string); ok {
		order.InvoicePushError = &v
	}
	if v, ok := updates["invoice_id"].(string); ok && v != "" {
		order.InvoiceID = &v
	}
	if v, ok := updates["invoice_number"].(string); ok && v != "" {
		order.InvoiceNumber = &v
	}

	if err := c.repo.Update(ctx, order.ID, updates, nil); err != nil {
		c.logger.Error(ctx, "record invoice push outcome", err)
	}
}
