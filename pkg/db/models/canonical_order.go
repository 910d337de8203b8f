package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/types"
)

// CanonicalOrder is the normalized representation of a marketplace sale.
// At most one row exists per (external_order_id, marketplace_name, user_id,
// organization_id); that tuple is the ingestion idempotency key.
type CanonicalOrder struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalOrderID string          `gorm:"column:external_order_id;not null"`
	MarketplaceName string          `gorm:"column:marketplace_name;not null"`
	Tenant          types.TenantKey `gorm:"embedded"`

	OrderStatus   enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	ShippingAddress *types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.Address `gorm:"column:billing_address;type:jsonb;serializer:json"`

	Subtotal decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null;default:0"`
	Tax      decimal.Decimal `gorm:"column:tax;type:numeric(14,2);not null;default:0"`
	Shipping decimal.Decimal `gorm:"column:shipping;type:numeric(14,2);not null;default:0"`
	Discount decimal.Decimal `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Total    decimal.Decimal `gorm:"column:total;type:numeric(14,2);not null;default:0"`

	TrackingNumber  *string `gorm:"column:tracking_number"`
	TrackingCarrier *string `gorm:"column:tracking_carrier"`
	TrackingURL     *string `gorm:"column:tracking_url"`

	EstimatedDeliveryDate *time.Time `gorm:"column:estimated_delivery_date"`
	ShippedDate           *time.Time `gorm:"column:shipped_date"`
	DeliveredDate         *time.Time `gorm:"column:delivered_date"`

	MarketplaceData types.JSONMap `gorm:"column:marketplace_data;type:jsonb;serializer:json"`

	// Invoice bookkeeping, owned exclusively by the invoice sync coordinator.
	InvoicePushAttempted bool                    `gorm:"column:invoice_push_attempted;not null;default:false"`
	InvoicePushDate      *time.Time              `gorm:"column:invoice_push_date"`
	InvoicePushStatus    enums.InvoicePushStatus `gorm:"column:invoice_push_status;type:text;not null;default:'none'"`
	InvoicePushError     *string                 `gorm:"column:invoice_push_error"`
	InvoiceID            *string                 `gorm:"column:invoice_id"`
	InvoiceNumber        *string                 `gorm:"column:invoice_number"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name so gorm does not pluralize "canonical_order" oddly.
func (CanonicalOrder) TableName() string {
	return "canonical_orders"
}
