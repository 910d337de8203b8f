package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/channelsync/orders-backend/internal/ingestion"
	pkgerrors "github.com/channelsync/orders-backend/pkg/errors"
	"github.com/channelsync/orders-backend/pkg/logger"
	"github.com/channelsync/orders-backend/pkg/metrics"
	"github.com/channelsync/orders-backend/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const ingestConsumerName = "ingest-worker"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type ingester interface {
	Ingest(ctx context.Context, marketplaceName string, tenant types.TenantKey, raws []ingestion.RawOrder) (*ingestion.Report, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, batchID string) (bool, error)
	Delete(ctx context.Context, consumer, batchID string) error
}

// jobPayload is the JSON body of one ingestion job message.
type jobPayload struct {
	BatchID     string               `json:"batch_id" validate:"required"`
	Marketplace string               `json:"marketplace" validate:"required"`
	Tenant      jobTenant            `json:"tenant" validate:"required"`
	Orders      []ingestion.RawOrder `json:"orders" validate:"required,min=1"`
}

type jobTenant struct {
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
}

// Consumer pulls ingestion jobs from Pub/Sub and runs them through the
// batch engine. Redelivered batches are dropped by the Redis guard.
type Consumer struct {
	engine       ingester
	manager      idempotencyChecker
	subscription *pubsub.Subscriber
	metrics      *metrics.IngestionMetrics
	logg         *logger.Logger
}

// NewConsumer builds a consumer that watches the provided subscription.
func NewConsumer(engine ingester, manager idempotencyChecker, subscription *pubsub.Subscriber, m *metrics.IngestionMetrics, logg *logger.Logger) (*Consumer, error) {
	if engine == nil {
		return nil, errors.New("ingestion engine is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if subscription == nil {
		return nil, errors.New("ingestion subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		engine:       engine,
		manager:      manager,
		subscription: subscription,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})

	job, err := decodeJob(msg.Data)
	if err != nil {
		// Malformed payloads never become valid on redelivery.
		c.logg.Error(logCtx, "invalid ingestion job payload", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithBatchID(logCtx, job.BatchID)
	logCtx = c.logg.WithMarketplace(logCtx, job.Marketplace)

	already, err := c.manager.CheckAndMarkProcessed(ctx, ingestConsumerName, job.BatchID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "batch already processed")
		c.metrics.IncBatch(job.Marketplace, metrics.ResultDuplicate)
		return processResult{ack: true}
	}

	tenant := types.TenantKey{UserID: job.Tenant.UserID, OrganizationID: job.Tenant.OrganizationID}
	start := time.Now()
	report, err := c.engine.Ingest(ctx, job.Marketplace, tenant, job.Orders)
	c.metrics.ObserveBatchDuration(job.Marketplace, time.Since(start))

	if err != nil {
		c.metrics.IncBatch(job.Marketplace, metrics.ResultFailure)
		// Clear the processed marker so a replayed batch is not dropped.
		if delErr := c.manager.Delete(ctx, ingestConsumerName, job.BatchID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear batch marker", delErr)
		}
		if isTransientError(err) {
			c.logg.Error(logCtx, "ingestion interrupted, requesting redelivery", err)
			return processResult{nack: true}
		}
		// Batch-fatal configuration problems (missing mapper, bad tenant)
		// do not resolve by redelivering the same message.
		c.logg.Error(logCtx, "ingestion batch failed", err)
		return processResult{ack: true}
	}

	c.recordReport(job.Marketplace, report)
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"created":          report.Created,
		"updated":          report.Updated,
		"skipped":          report.Skipped,
		"invoices_created": report.InvoicesCreated,
		"errors":           len(report.Errors),
	}), "ingestion batch processed")
	return processResult{ack: true}
}

func (c *Consumer) recordReport(marketplace string, report *ingestion.Report) {
	c.metrics.IncBatch(marketplace, metrics.ResultSuccess)
	c.metrics.AddOrders(marketplace, metrics.OutcomeCreated, report.Created)
	c.metrics.AddOrders(marketplace, metrics.OutcomeUpdated, report.Updated)
	c.metrics.AddOrders(marketplace, metrics.OutcomeSkipped, report.Skipped)
	c.metrics.AddOrders(marketplace, metrics.OutcomeFailed, len(report.Errors))
	c.metrics.AddInvoices(marketplace, metrics.ResultSuccess, report.InvoicesCreated)
}

func decodeJob(data []byte) (*jobPayload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	var job jobPayload
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode ingestion job")
	}
	if err := validate.Struct(&job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validate ingestion job")
	}
	return &job, nil
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	return false
}
