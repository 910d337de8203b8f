package ingestion

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/channelsync/orders-backend/internal/invoicing"
	"github.com/channelsync/orders-backend/internal/orders"
	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/logger"
	"github.com/channelsync/orders-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupEngineTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS canonical_orders (
  id TEXT PRIMARY KEY,
  external_order_id TEXT NOT NULL,
  marketplace_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  organization_id TEXT NOT NULL,
  order_status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  shipping_address TEXT,
  billing_address TEXT,
  subtotal NUMERIC NOT NULL DEFAULT 0,
  tax NUMERIC NOT NULL DEFAULT 0,
  shipping NUMERIC NOT NULL DEFAULT 0,
  discount NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL DEFAULT 0,
  tracking_number TEXT,
  tracking_carrier TEXT,
  tracking_url TEXT,
  estimated_delivery_date DATETIME,
  shipped_date DATETIME,
  delivered_date DATETIME,
  marketplace_data TEXT,
  invoice_push_attempted INTEGER NOT NULL DEFAULT 0,
  invoice_push_date DATETIME,
  invoice_push_status TEXT NOT NULL DEFAULT 'none',
  invoice_push_error TEXT,
  invoice_id TEXT,
  invoice_number TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (external_order_id, marketplace_name, user_id, organization_id)
);`, `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  name TEXT,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// fakeProvider counts invoice creations; eligibility defaults to paid with
// a positive total.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (p *fakeProvider) ShouldCreateInvoice(ctx context.Context, order *models.CanonicalOrder) bool {
	return order.PaymentStatus == enums.PaymentStatusPaid && order.Total.IsPositive()
}

func (p *fakeProvider) CreateInvoice(ctx context.Context, order *models.CanonicalOrder) (*invoicing.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, fmt.Errorf("invoice backend down")
	}
	return &invoicing.Result{InvoiceID: "inv-" + order.ExternalOrderID, InvoiceNumber: "1001"}, nil
}

func (p *fakeProvider) createCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// testMapper normalizes the flat raw payloads the tests feed in.
func testMapper() Mapper {
	return MapperFunc(func(ctx context.Context, raw RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error) {
		externalID, _ := raw["external_order_id"].(string)
		order := &models.CanonicalOrder{
			ExternalOrderID: externalID,
			OrderStatus:     enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
		}
		if status, ok := raw["status"].(string); ok {
			order.OrderStatus = enums.OrderStatus(status)
		}
		if payment, ok := raw["payment"].(string); ok {
			order.PaymentStatus = enums.PaymentStatus(payment)
		}
		if total, ok := raw["total"].(float64); ok {
			order.Total = decimal.NewFromFloat(total)
		}
		if items, ok := raw["items"].([]models.OrderLineItem); ok {
			order.LineItems = items
		}
		if raw["boom"] == true {
			panic("mapper exploded")
		}
		if fail, ok := raw["fail"].(bool); ok && fail {
			return nil, fmt.Errorf("unparseable payload")
		}
		return order, nil
	})
}

type engineFixture struct {
	engine   *Engine
	provider *fakeProvider
	repo     orders.Repository
	tenant   types.TenantKey
}

func newEngineFixture(t *testing.T, mutate func(params *EngineParams)) *engineFixture {
	t.Helper()

	conn := setupEngineTestDB(t)
	repo := orders.NewRepository(conn)
	provider := &fakeProvider{}
	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	coord, err := invoicing.NewCoordinator(invoicing.CoordinatorParams{
		Repo:     repo,
		Provider: provider,
		Logger:   log,
	})
	require.NoError(t, err)

	registry := NewRegistry()
	require.NoError(t, registry.Register("mp1", testMapper()))

	params := EngineParams{
		Repo:     repo,
		Invoices: coord,
		Registry: registry,
		Logger:   log,
	}
	if mutate != nil {
		mutate(&params)
	}
	engine, err := NewEngine(params)
	require.NoError(t, err)

	return &engineFixture{
		engine:   engine,
		provider: provider,
		repo:     repo,
		tenant:   types.TenantKey{UserID: uuid.New(), OrganizationID: uuid.New()},
	}
}

func shippedPaidOrder(externalID string) RawOrder {
	return RawOrder{
		"external_order_id": externalID,
		"status":            "shipped",
		"payment":           "paid",
		"total":             100.0,
		"items": []models.OrderLineItem{
			{SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromFloat(50), Total: decimal.NewFromFloat(100)},
		},
	}
}

func TestIngestCreatesOrderAndInvoice(t *testing.T) {
	f := newEngineFixture(t, nil)

	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{shippedPaidOrder("A1")})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, report.InvoicesCreated)
	assert.Empty(t, report.Errors)

	stored, err := f.repo.FindByExternalKey(context.Background(), "A1", "mp1", f.tenant)
	require.NoError(t, err)
	assert.True(t, stored.InvoicePushAttempted)
	assert.Equal(t, enums.InvoicePushStatusSuccess, stored.InvoicePushStatus)
	require.NotNil(t, stored.InvoiceID)
}

func TestIngestIdenticalBatchTwiceSkipsAndPushesOnce(t *testing.T) {
	f := newEngineFixture(t, nil)
	batch := []RawOrder{shippedPaidOrder("A2")}

	first, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, first.InvoicesCreated)

	second, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.InvoicesCreated)
	assert.Empty(t, second.Errors)

	assert.Equal(t, 1, f.provider.createCalls())
}

func TestIngestDuplicateExternalIDWithinBatch(t *testing.T) {
	f := newEngineFixture(t, func(params *EngineParams) {
		params.Concurrency = 1
	})

	batch := []RawOrder{shippedPaidOrder("D1"), shippedPaidOrder("D1")}
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, batch)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, f.provider.createCalls())
}

func TestIngestStatusChangeUpdatesWithoutSecondInvoice(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{shippedPaidOrder("A3")})
	require.NoError(t, err)

	changed := shippedPaidOrder("A3")
	changed["status"] = "delivered"
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{changed})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.InvoicesCreated)
	assert.Equal(t, 1, f.provider.createCalls())

	stored, err := f.repo.FindByExternalKey(context.Background(), "A3", "mp1", f.tenant)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, stored.OrderStatus)
	assert.True(t, stored.InvoicePushAttempted)
}

func TestIngestLineItemPermutationSkips(t *testing.T) {
	f := newEngineFixture(t, nil)

	initial := shippedPaidOrder("A4")
	initial["items"] = []models.OrderLineItem{
		{SKU: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromFloat(30), Total: decimal.NewFromFloat(30)},
		{SKU: "SKU-2", Quantity: 2, UnitPrice: decimal.NewFromFloat(35), Total: decimal.NewFromFloat(70)},
	}
	_, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{initial})
	require.NoError(t, err)

	permuted := shippedPaidOrder("A4")
	permuted["items"] = []models.OrderLineItem{
		{SKU: "SKU-2", Quantity: 2, UnitPrice: decimal.NewFromFloat(35), Total: decimal.NewFromFloat(70)},
		{SKU: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromFloat(30), Total: decimal.NewFromFloat(30)},
	}
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{permuted})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Updated)
}

func TestIngestMissingMapperFailsBatch(t *testing.T) {
	f := newEngineFixture(t, nil)

	report, err := f.engine.Ingest(context.Background(), "unknown-mp", f.tenant, []RawOrder{shippedPaidOrder("A5")})
	require.Error(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, 0, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "no mapper registered")

	// Nothing was processed.
	_, lookupErr := f.repo.FindByExternalKey(context.Background(), "A5", "unknown-mp", f.tenant)
	assert.ErrorIs(t, lookupErr, gorm.ErrRecordNotFound)
}

func TestIngestFailSoftIsolatesBadItems(t *testing.T) {
	f := newEngineFixture(t, nil)

	batch := []RawOrder{
		shippedPaidOrder("B1"),
		{"external_order_id": "B2", "fail": true},
		shippedPaidOrder("B3"),
		{"external_order_id": "B4", "boom": true},
	}
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, batch)
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Created)
	require.Len(t, report.Errors, 2)

	byID := map[string]string{}
	for _, item := range report.Errors {
		byID[item.ExternalOrderID] = item.Message
	}
	assert.Contains(t, byID["B2"], "unparseable payload")
	assert.Contains(t, byID["B4"], "panic")
}

func TestIngestInvoiceFailureRecordedNotRethrown(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.provider.fail = true

	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{shippedPaidOrder("C1")})
	require.NoError(t, err)

	// The order itself succeeded; the invoice failure lives in bookkeeping.
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.InvoicesCreated)
	assert.Empty(t, report.Errors)

	stored, err := f.repo.FindByExternalKey(context.Background(), "C1", "mp1", f.tenant)
	require.NoError(t, err)
	assert.True(t, stored.InvoicePushAttempted)
	assert.Equal(t, enums.InvoicePushStatusFailed, stored.InvoicePushStatus)
	require.NotNil(t, stored.InvoicePushError)
	assert.Contains(t, *stored.InvoicePushError, "invoice backend down")

	// A second pass never retries the failed push.
	second, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{shippedPaidOrder("C1")})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, f.provider.createCalls())
}

func TestIngestDisableUpdatesSkipsChangedOrders(t *testing.T) {
	f := newEngineFixture(t, func(params *EngineParams) {
		params.DisableUpdates = true
	})

	_, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{shippedPaidOrder("D1")})
	require.NoError(t, err)

	changed := shippedPaidOrder("D1")
	changed["status"] = "delivered"
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, []RawOrder{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Updated)

	stored, err := f.repo.FindByExternalKey(context.Background(), "D1", "mp1", f.tenant)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, stored.OrderStatus)
}

func TestIngestHonorsConcurrencyBound(t *testing.T) {
	f := newEngineFixture(t, func(params *EngineParams) {
		params.Concurrency = 3
	})

	var inflight, peak int64
	var mu sync.Mutex
	registry := NewRegistry()
	require.NoError(t, registry.Register("mp-gauge", MapperFunc(func(ctx context.Context, raw RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error) {
		current := atomic.AddInt64(&inflight, 1)
		mu.Lock()
		if current > peak {
			peak = current
		}
		mu.Unlock()
		defer atomic.AddInt64(&inflight, -1)
		return testMapper().Map(ctx, raw, tenant)
	})))
	f.engine.registry = registry

	batch := make([]RawOrder, 0, 20)
	for i := 0; i < 20; i++ {
		raw := shippedPaidOrder(fmt.Sprintf("E%d", i))
		raw["payment"] = "pending"
		batch = append(batch, raw)
	}

	report, err := f.engine.Ingest(context.Background(), "mp-gauge", f.tenant, batch)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Created)

	mu.Lock()
	observedPeak := peak
	mu.Unlock()
	assert.LessOrEqual(t, observedPeak, int64(3))
	assert.Positive(t, observedPeak)
}

func TestIngestCancelledContext(t *testing.T) {
	f := newEngineFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.Ingest(ctx, "mp1", f.tenant, []RawOrder{shippedPaidOrder("F1"), shippedPaidOrder("F2")})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Success)
	assert.Zero(t, report.Created)
}

func TestIngestEmptyBatch(t *testing.T) {
	f := newEngineFixture(t, nil)
	report, err := f.engine.Ingest(context.Background(), "mp1", f.tenant, nil)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Zero(t, report.Created+report.Updated+report.Skipped)
}

func TestIngestInvalidTenant(t *testing.T) {
	f := newEngineFixture(t, nil)
	report, err := f.engine.Ingest(context.Background(), "mp1", types.TenantKey{}, []RawOrder{shippedPaidOrder("G1")})
	require.Error(t, err)
	assert.False(t, report.Success)
}
