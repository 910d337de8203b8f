package orders

import (
	"context"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for canonical orders.
// Absent rows surface as gorm.ErrRecordNotFound.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByExternalKey(ctx context.Context, externalOrderID, marketplaceName string, tenant types.TenantKey) (*models.CanonicalOrder, error)
	Create(ctx context.Context, order *models.CanonicalOrder) (*models.CanonicalOrder, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any, lineItems []models.OrderLineItem) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.CanonicalOrder, error)
}
