package orders

import (
	"context"
	"time"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a canonical order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByExternalKey(ctx context.Context, externalOrderID, marketplaceName string, tenant types.TenantKey) (*models.CanonicalOrder, error) {
	var order models.CanonicalOrder
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("external_order_id = ? AND marketplace_name = ? AND user_id = ? AND organization_id = ?",
			externalOrderID, marketplaceName, tenant.UserID, tenant.OrganizationID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, order *models.CanonicalOrder) (*models.CanonicalOrder, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.LineItems {
		if order.LineItems[i].ID == uuid.Nil {
			order.LineItems[i].ID = uuid.New()
		}
		order.LineItems[i].OrderID = order.ID
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// Update applies the given column updates and, when lineItems is non-nil,
// replaces the full line item set. Items are never merged individually.
func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any, lineItems []models.OrderLineItem) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.CanonicalOrder{}).
		Where("id = ?", orderID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	if lineItems == nil {
		return nil
	}

	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderLineItem{}).Error; err != nil {
		return err
	}
	if len(lineItems) == 0 {
		return nil
	}
	for i := range lineItems {
		if lineItems[i].ID == uuid.Nil {
			lineItems[i].ID = uuid.New()
		}
		lineItems[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&lineItems).Error
}

func (r *repository) GetByID(ctx context.Context, orderID uuid.UUID) (*models.CanonicalOrder, error) {
	var order models.CanonicalOrder
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}
