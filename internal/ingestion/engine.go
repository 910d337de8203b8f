package ingestion

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/channelsync/orders-backend/internal/invoicing"
	"github.com/channelsync/orders-backend/internal/orders"
	"github.com/channelsync/orders-backend/pkg/db"
	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/errors"
	"github.com/channelsync/orders-backend/pkg/logger"
	"github.com/channelsync/orders-backend/pkg/types"
	"gorm.io/gorm"
)

// DefaultConcurrency bounds the worker pool when no override is configured.
const DefaultConcurrency = 10

// EngineParams groups dependencies for the batch ingestion engine.
type EngineParams struct {
	// DB is optional; when present and the driver supports transactions,
	// each order's write sequence runs inside one transaction.
	DB       *db.Client
	Repo     orders.Repository
	Invoices *invoicing.Coordinator
	Registry *Registry
	Logger   *logger.Logger

	Concurrency int
	// DisableUpdates marks changed existing orders as skipped instead of
	// overwriting them.
	DisableUpdates bool
}

// Engine ingests batches of raw marketplace orders: each order is mapped,
// reconciled against stored state (create, update, or skip), and handed to
// the invoice coordinator. Item failures are isolated; only a missing
// mapper fails the whole batch.
type Engine struct {
	db             *db.Client
	repo           orders.Repository
	invoices       *invoicing.Coordinator
	registry       *Registry
	logger         *logger.Logger
	concurrency    int
	disableUpdates bool
}

// NewEngine builds a batch ingestion engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice coordinator is required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("mapper registry is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Engine{
		db:             params.DB,
		repo:           params.Repo,
		invoices:       params.Invoices,
		registry:       params.Registry,
		logger:         params.Logger,
		concurrency:    concurrency,
		disableUpdates: params.DisableUpdates,
	}, nil
}

// Ingest processes the batch and blocks until every scheduled order has
// completed. The returned report is always non-nil.
func (e *Engine) Ingest(ctx context.Context, marketplaceName string, tenant types.TenantKey, raws []RawOrder) (*Report, error) {
	report := NewReport()

	marketplace := normalizeMarketplace(marketplaceName)
	if marketplace == "" {
		report.fail()
		err := errors.New(errors.CodeValidation, "marketplace name is required")
		report.addError("", err.Error())
		return report, err
	}
	if err := tenant.Validate(); err != nil {
		report.fail()
		wrapped := errors.Wrap(errors.CodeValidation, err, "invalid tenant key")
		report.addError("", wrapped.Error())
		return report, wrapped
	}

	mapper, ok := e.registry.Lookup(marketplace)
	if !ok {
		report.fail()
		err := errors.New(errors.CodeNoMapper, fmt.Sprintf("no mapper registered for marketplace %q", marketplace))
		report.addError("", err.Error())
		return report, err
	}

	ctx = e.logger.WithMarketplace(ctx, marketplace)
	ctx = e.logger.WithTenant(ctx, tenant.String())

	if len(raws) == 0 {
		return report, nil
	}

	workers := e.concurrency
	if workers > len(raws) {
		workers = len(raws)
	}

	jobs := make(chan RawOrder)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for raw := range jobs {
				e.processOrder(ctx, report, mapper, marketplace, tenant, raw)
			}
		}()
	}

dispatch:
	for _, raw := range raws {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- raw:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		report.fail()
		return report, err
	}

	e.logger.Info(e.logger.WithFields(ctx, map[string]any{
		"created":          report.Created,
		"updated":          report.Updated,
		"skipped":          report.Skipped,
		"invoices_created": report.InvoicesCreated,
		"errors":           len(report.Errors),
	}), "ingestion batch complete")
	return report, nil
}

// processOrder runs the per-order pipeline. Panics and errors stay inside
// the item's report entry so sibling orders keep flowing.
func (e *Engine) processOrder(ctx context.Context, report *Report, mapper Mapper, marketplace string, tenant types.TenantKey, raw RawOrder) {
	externalID := rawExternalOrderID(raw)
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.New(errors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			e.logger.Error(ctx, "ingestion worker panic", err)
			report.addError(externalID, err.Error())
		}
	}()

	if err := ctx.Err(); err != nil {
		report.addError(externalID, err.Error())
		return
	}

	incoming, err := mapper.Map(ctx, raw, tenant)
	if err != nil {
		report.addError(externalID, errors.Wrap(errors.CodeMapping, err, "normalize order").Error())
		return
	}
	if incoming == nil || strings.TrimSpace(incoming.ExternalOrderID) == "" {
		report.addError(externalID, errors.New(errors.CodeMapping, "mapped order missing external order id").Error())
		return
	}
	externalID = incoming.ExternalOrderID
	incoming.MarketplaceName = marketplace
	incoming.Tenant = tenant

	ctx = e.logger.WithExternalOrderID(ctx, externalID)

	existing, err := e.repo.FindByExternalKey(ctx, externalID, marketplace, tenant)
	switch {
	case err == nil:
		e.reconcileExisting(ctx, report, existing, incoming)
	case stdErrors.Is(err, gorm.ErrRecordNotFound):
		e.createOrder(ctx, report, incoming)
	default:
		report.addError(externalID, errors.Wrap(errors.CodeStorage, err, "lookup order").Error())
	}
}

func (e *Engine) createOrder(ctx context.Context, report *Report, incoming *models.CanonicalOrder) {
	var outcome invoicing.Outcome
	err := e.withWriteScope(ctx, func(repo orders.Repository, coord *invoicing.Coordinator) error {
		created, err := repo.Create(ctx, incoming)
		if err != nil {
			return errors.Wrap(errors.CodeStorage, err, "create order")
		}
		fresh, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			return errors.Wrap(errors.CodeStorage, err, "reload order")
		}
		outcome, err = coord.SyncInvoice(ctx, fresh)
		return err
	})
	if err != nil {
		// A same-key sibling in the batch can win the insert race; the
		// unique index turns the loser into an update-or-skip.
		if db.IsUniqueViolation(err, "") {
			existing, lookupErr := e.repo.FindByExternalKey(ctx, incoming.ExternalOrderID, incoming.MarketplaceName, incoming.Tenant)
			if lookupErr == nil {
				e.reconcileExisting(ctx, report, existing, incoming)
				return
			}
		}
		report.addError(incoming.ExternalOrderID, err.Error())
		return
	}
	report.addCreated()
	if outcome.Created {
		report.addInvoiceCreated()
	}
	e.logger.Info(ctx, "order created")
}

func (e *Engine) reconcileExisting(ctx context.Context, report *Report, existing, incoming *models.CanonicalOrder) {
	diff := orders.Compare(existing, incoming)
	if diff.Empty() {
		report.addSkipped()
		e.logger.Debug(ctx, "order unchanged, skipping")
		return
	}
	if e.disableUpdates {
		report.addSkipped()
		e.logger.Debug(ctx, "updates disabled, skipping changed order")
		return
	}

	var outcome invoicing.Outcome
	err := e.withWriteScope(ctx, func(repo orders.Repository, coord *invoicing.Coordinator) error {
		var lineItems []models.OrderLineItem
		if diff.LineItems {
			lineItems = incoming.LineItems
			if lineItems == nil {
				// incoming dropped every item; nil would mean "leave items alone"
				lineItems = []models.OrderLineItem{}
			}
		}
		if err := repo.Update(ctx, existing.ID, diff.Fields, lineItems); err != nil {
			return errors.Wrap(errors.CodeStorage, err, "update order")
		}
		fresh, err := repo.GetByID(ctx, existing.ID)
		if err != nil {
			return errors.Wrap(errors.CodeStorage, err, "reload order")
		}
		outcome, err = coord.SyncInvoice(ctx, fresh)
		return err
	})
	if err != nil {
		report.addError(incoming.ExternalOrderID, err.Error())
		return
	}
	report.addUpdated()
	if outcome.Created {
		report.addInvoiceCreated()
	}
	e.logger.Info(ctx, "order updated")
}

// withWriteScope runs fn transactionally when the store supports it, so a
// crash between the order write and the invoice bookkeeping cannot strand
// the order. Without transactions fn runs against the live connection and
// the bookkeeping write is best-effort.
func (e *Engine) withWriteScope(ctx context.Context, fn func(orders.Repository, *invoicing.Coordinator) error) error {
	if e.db != nil && e.db.SupportsTransactions() {
		return e.db.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(e.repo.WithTx(tx), e.invoices.WithTx(tx))
		})
	}
	return fn(e.repo, e.invoices)
}

// rawExternalOrderID pulls a best-effort identifier out of an unmapped
// payload so mapping failures can still name the order in the report.
func rawExternalOrderID(raw RawOrder) string {
	for _, key := range []string{"external_order_id", "externalOrderId", "order_id", "id"} {
		if value, ok := raw[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
