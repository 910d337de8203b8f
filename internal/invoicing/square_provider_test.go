package invoicing

import (
	"context"
	"testing"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestShouldCreateInvoice(t *testing.T) {
	provider := &SquareProvider{}

	tests := []struct {
		name          string
		paymentStatus enums.PaymentStatus
		total         decimal.Decimal
		want          bool
	}{
		{"paid positive total", enums.PaymentStatusPaid, decimal.NewFromFloat(10), true},
		{"paid zero total", enums.PaymentStatusPaid, decimal.Zero, false},
		{"paid negative total", enums.PaymentStatusPaid, decimal.NewFromFloat(-5), false},
		{"pending payment", enums.PaymentStatusPending, decimal.NewFromFloat(10), false},
		{"refunded", enums.PaymentStatusRefunded, decimal.NewFromFloat(10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &models.CanonicalOrder{PaymentStatus: tt.paymentStatus, Total: tt.total}
			assert.Equal(t, tt.want, provider.ShouldCreateInvoice(context.Background(), order))
		})
	}

	assert.False(t, provider.ShouldCreateInvoice(context.Background(), nil))
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(4500), toCents(decimal.NewFromFloat(45)))
	assert.Equal(t, int64(1999), toCents(decimal.NewFromFloat(19.99)))
	assert.Equal(t, int64(1000), toCents(decimal.RequireFromString("9.999")))
	assert.Equal(t, int64(0), toCents(decimal.Zero))
}

func TestToSquareLineItemsFallsBackToTotal(t *testing.T) {
	order := &models.CanonicalOrder{Total: decimal.NewFromFloat(25.50)}
	items := toSquareLineItems(order)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(2550), items[0].UnitPriceCents)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestToSquareLineItemsMapsOrderItems(t *testing.T) {
	order := &models.CanonicalOrder{
		LineItems: []models.OrderLineItem{
			{SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromFloat(45)},
			{SKU: "SKU-2", Name: "Gadget", Quantity: 1, UnitPrice: decimal.NewFromFloat(19.99)},
		},
	}
	items := toSquareLineItems(order)
	assert.Len(t, items, 2)
	assert.Equal(t, "SKU-1", items[0].SKU)
	assert.Equal(t, int64(4500), items[0].UnitPriceCents)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(1999), items[1].UnitPriceCents)
}
