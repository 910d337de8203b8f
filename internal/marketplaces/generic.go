package marketplaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/channelsync/orders-backend/internal/ingestion"
	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/types"
)

// Statuses marketplaces report under a different vocabulary than ours.
var orderStatusAliases = map[string]enums.OrderStatus{
	"new":        enums.OrderStatusPending,
	"processing": enums.OrderStatusConfirmed,
	"complete":   enums.OrderStatusDelivered,
	"completed":  enums.OrderStatusDelivered,
	"cancelled":  enums.OrderStatusCanceled,
	"refunded":   enums.OrderStatusReturned,
}

var paymentStatusAliases = map[string]enums.PaymentStatus{
	"complete":  enums.PaymentStatusPaid,
	"completed": enums.PaymentStatusPaid,
	"unpaid":    enums.PaymentStatusPending,
	"partial":   enums.PaymentStatusPartial,
}

// NewGenericMapper maps the normalized feed shape every supported channel is
// pulled into before queueing: flat keys for identity, statuses and totals,
// an items array, and optional address/tracking objects. Deterministic and
// I/O free so the engine can run it inside worker goroutines.
func NewGenericMapper(marketplace enums.Marketplace) ingestion.Mapper {
	return ingestion.MapperFunc(func(ctx context.Context, raw ingestion.RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error) {
		externalOrderID := stringField(raw, "external_order_id")
		if externalOrderID == "" {
			externalOrderID = stringField(raw, "order_id")
		}
		if externalOrderID == "" {
			return nil, fmt.Errorf("raw order has no external order id")
		}

		orderStatus, err := parseOrderStatus(stringField(raw, "status"))
		if err != nil {
			return nil, err
		}
		paymentStatus, err := parsePaymentStatus(stringField(raw, "payment"))
		if err != nil {
			return nil, err
		}

		order := &models.CanonicalOrder{
			ExternalOrderID: externalOrderID,
			MarketplaceName: string(marketplace),
			Tenant:          tenant,
			OrderStatus:     orderStatus,
			PaymentStatus:   paymentStatus,
			ShippingAddress: parseAddress(raw, "shipping_address"),
			BillingAddress:  parseAddress(raw, "billing_address"),
			TrackingNumber:  optionalString(raw, "tracking_number"),
			TrackingCarrier: optionalString(raw, "tracking_carrier"),
			TrackingURL:     optionalString(raw, "tracking_url"),
		}

		money := []struct {
			key string
			dst *decimal.Decimal
		}{
			{"subtotal", &order.Subtotal},
			{"tax", &order.Tax},
			{"shipping", &order.Shipping},
			{"discount", &order.Discount},
			{"total", &order.Total},
		}
		for _, field := range money {
			value, err := parseDecimal(raw[field.key])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.key, err)
			}
			*field.dst = value
		}

		if order.EstimatedDeliveryDate, err = parseTime(raw, "estimated_delivery_date"); err != nil {
			return nil, err
		}
		if order.ShippedDate, err = parseTime(raw, "shipped_date"); err != nil {
			return nil, err
		}
		if order.DeliveredDate, err = parseTime(raw, "delivered_date"); err != nil {
			return nil, err
		}

		if data, ok := raw["marketplace_data"].(map[string]any); ok && len(data) > 0 {
			order.MarketplaceData = types.JSONMap(data)
		}

		items, err := parseLineItems(raw)
		if err != nil {
			return nil, err
		}
		order.LineItems = items

		return order, nil
	})
}

func parseLineItems(raw ingestion.RawOrder) ([]models.OrderLineItem, error) {
	entries, ok := raw["items"].([]any)
	if !ok {
		return nil, nil
	}

	items := make([]models.OrderLineItem, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		sku := stringValue(obj, "sku")
		if sku == "" {
			return nil, fmt.Errorf("item %d has no sku", i)
		}
		quantity, err := parseQuantity(obj["quantity"])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if quantity <= 0 {
			return nil, fmt.Errorf("item %d has non-positive quantity %d", i, quantity)
		}
		unitPrice, err := parseDecimal(obj["unit_price"])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		total, err := parseDecimal(obj["total"])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if total.IsZero() {
			total = unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
		}

		items = append(items, models.OrderLineItem{
			SKU:       sku,
			Name:      stringValue(obj, "name"),
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Total:     total,
		})
	}
	return items, nil
}

func parseOrderStatus(value string) (enums.OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return enums.OrderStatusPending, nil
	}
	if alias, ok := orderStatusAliases[normalized]; ok {
		return alias, nil
	}
	return enums.ParseOrderStatus(normalized)
}

func parsePaymentStatus(value string) (enums.PaymentStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return enums.PaymentStatusPending, nil
	}
	if alias, ok := paymentStatusAliases[normalized]; ok {
		return alias, nil
	}
	return enums.ParsePaymentStatus(normalized)
}
