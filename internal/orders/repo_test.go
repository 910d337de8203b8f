package orders

import (
	"context"
	"testing"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	canonicalOrders := `
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
);`
	lineItems := `
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
);`

	require.NoError(t, db.Exec(canonicalOrders).Error)
	require.NoError(t, db.Exec(lineItems).Error)

	return db
}

func testTenant() types.TenantKey {
	return types.TenantKey{UserID: uuid.New(), OrganizationID: uuid.New()}
}

func seedOrder(t *testing.T, repo Repository, tenant types.TenantKey, externalID string) *models.CanonicalOrder {
	t.Helper()
	order := &models.CanonicalOrder{
		ExternalOrderID: externalID,
		MarketplaceName: "mp1",
		Tenant:          tenant,
		OrderStatus:     enums.OrderStatusShipped,
		PaymentStatus:   enums.PaymentStatusPaid,
		Subtotal:        decimal.NewFromFloat(90),
		Total:           decimal.NewFromFloat(100),
		LineItems: []models.OrderLineItem{
			{SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromFloat(45), Total: decimal.NewFromFloat(90)},
		},
	}
	created, err := repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestRepositoryCreateAndFindByExternalKey(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	tenant := testTenant()

	created := seedOrder(t, repo, tenant, "EXT-100")
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := repo.FindByExternalKey(context.Background(), "EXT-100", "mp1", tenant)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.Len(t, found.LineItems, 1)
	assert.Equal(t, "SKU-1", found.LineItems[0].SKU)
	assert.True(t, found.Total.Equal(decimal.NewFromFloat(100)))
}

func TestRepositoryFindByExternalKeyScopesTenant(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	tenant := testTenant()
	seedOrder(t, repo, tenant, "EXT-101")

	otherTenant := testTenant()
	_, err := repo.FindByExternalKey(context.Background(), "EXT-101", "mp1", otherTenant)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Same user, different organization: still out of scope.
	partial := types.TenantKey{UserID: tenant.UserID, OrganizationID: uuid.New()}
	_, err = repo.FindByExternalKey(context.Background(), "EXT-101", "mp1", partial)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdateReplacesLineItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	tenant := testTenant()
	created := seedOrder(t, repo, tenant, "EXT-102")
	previousUpdatedAt := created.UpdatedAt

	newItems := []models.OrderLineItem{
		{SKU: "SKU-2", Name: "Gadget", Quantity: 1, UnitPrice: decimal.NewFromFloat(20), Total: decimal.NewFromFloat(20)},
		{SKU: "SKU-3", Name: "Gizmo", Quantity: 3, UnitPrice: decimal.NewFromFloat(10), Total: decimal.NewFromFloat(30)},
	}
	err := repo.Update(context.Background(), created.ID, map[string]any{
		"order_status": enums.OrderStatusDelivered,
		"total":        decimal.NewFromFloat(50),
	}, newItems)
	require.NoError(t, err)

	updated, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.OrderStatus)
	assert.True(t, updated.Total.Equal(decimal.NewFromFloat(50)))
	require.Len(t, updated.LineItems, 2)
	skus := []string{updated.LineItems[0].SKU, updated.LineItems[1].SKU}
	assert.ElementsMatch(t, []string{"SKU-2", "SKU-3"}, skus)
	assert.False(t, updated.UpdatedAt.Before(previousUpdatedAt))
	assert.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix())
}

func TestRepositoryUpdateNilLineItemsLeavesItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	tenant := testTenant()
	created := seedOrder(t, repo, tenant, "EXT-103")

	err := repo.Update(context.Background(), created.ID, map[string]any{
		"payment_status": enums.PaymentStatusRefunded,
	}, nil)
	require.NoError(t, err)

	updated, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, updated.PaymentStatus)
	require.Len(t, updated.LineItems, 1)
	assert.Equal(t, "SKU-1", updated.LineItems[0].SKU)
}

func TestRepositoryUpdateMissingOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	err := repo.Update(context.Background(), uuid.New(), map[string]any{
		"order_status": enums.OrderStatusCanceled,
	}, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUniqueExternalKey(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	tenant := testTenant()
	seedOrder(t, repo, tenant, "EXT-104")

	dup := &models.CanonicalOrder{
		ExternalOrderID: "EXT-104",
		MarketplaceName: "mp1",
		Tenant:          tenant,
		OrderStatus:     enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
	}
	_, err := repo.Create(context.Background(), dup)
	require.Error(t, err)
}
