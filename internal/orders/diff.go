package orders

import "github.com/channelsync/orders-backend/pkg/db/models"

// Diff captures the business-field drift between a stored canonical order and
// a freshly mapped one. Fields holds column-keyed values ready for a targeted
// update; LineItems flags that the item set must be replaced.
type Diff struct {
	Fields    map[string]any
	LineItems bool
}

// Empty reports that the incoming order carries no tracked change.
func (d Diff) Empty() bool {
	return len(d.Fields) == 0 && !d.LineItems
}

// NeedsUpdate decides whether the stored order must be overwritten.
// Pure and deterministic: only the tracked business fields participate.
func NeedsUpdate(existing, incoming *models.CanonicalOrder) bool {
	return !Compare(existing, incoming).Empty()
}

// Compare builds the field-level diff between the stored and incoming order.
// Tracked fields: order status, payment status, the three tracking fields,
// the five money totals, and the line item set.
func Compare(existing, incoming *models.CanonicalOrder) Diff {
	diff := Diff{Fields: map[string]any{}}

	if existing.OrderStatus != incoming.OrderStatus {
		diff.Fields["order_status"] = incoming.OrderStatus
	}
	if existing.PaymentStatus != incoming.PaymentStatus {
		diff.Fields["payment_status"] = incoming.PaymentStatus
	}

	if !stringPtrEqual(existing.TrackingNumber, incoming.TrackingNumber) {
		diff.Fields["tracking_number"] = incoming.TrackingNumber
	}
	if !stringPtrEqual(existing.TrackingCarrier, incoming.TrackingCarrier) {
		diff.Fields["tracking_carrier"] = incoming.TrackingCarrier
	}
	if !stringPtrEqual(existing.TrackingURL, incoming.TrackingURL) {
		diff.Fields["tracking_url"] = incoming.TrackingURL
	}

	if !existing.Subtotal.Equal(incoming.Subtotal) {
		diff.Fields["subtotal"] = incoming.Subtotal
	}
	if !existing.Tax.Equal(incoming.Tax) {
		diff.Fields["tax"] = incoming.Tax
	}
	if !existing.Shipping.Equal(incoming.Shipping) {
		diff.Fields["shipping"] = incoming.Shipping
	}
	if !existing.Discount.Equal(incoming.Discount) {
		diff.Fields["discount"] = incoming.Discount
	}
	if !existing.Total.Equal(incoming.Total) {
		diff.Fields["total"] = incoming.Total
	}

	diff.LineItems = lineItemsChanged(existing.LineItems, incoming.LineItems)

	return diff
}

// lineItemsChanged compares item sets keyed by SKU. Reordering without value
// change is not a change; a length mismatch always is. A duplicate SKU within
// a sequence is undefined input; the last occurrence wins in the lookup.
func lineItemsChanged(existing, incoming []models.OrderLineItem) bool {
	if len(existing) != len(incoming) {
		return true
	}
	bySKU := make(map[string]models.OrderLineItem, len(existing))
	for _, item := range existing {
		bySKU[item.SKU] = item
	}
	for _, item := range incoming {
		prev, ok := bySKU[item.SKU]
		if !ok {
			return true
		}
		if prev.Quantity != item.Quantity {
			return true
		}
		if !prev.UnitPrice.Equal(item.UnitPrice) {
			return true
		}
		if !prev.Total.Equal(item.Total) {
			return true
		}
	}
	return false
}

func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
