package invoicing

import (
	"context"
	"fmt"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/enums"
	"github.com/channelsync/orders-backend/pkg/errors"
	"github.com/channelsync/orders-backend/pkg/square"
	"github.com/shopspring/decimal"
)

// SquareProvider drafts and publishes Square invoices for paid orders.
type SquareProvider struct {
	client *square.Client
}

// NewSquareProvider builds a provider backed by the shared Square client.
func NewSquareProvider(client *square.Client) (*SquareProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("square client is required")
	}
	return &SquareProvider{client: client}, nil
}

// ShouldCreateInvoice reports eligibility: the order is paid and carries a
// positive total.
func (p *SquareProvider) ShouldCreateInvoice(ctx context.Context, order *models.CanonicalOrder) bool {
	if order == nil {
		return false
	}
	return order.PaymentStatus == enums.PaymentStatusPaid && order.Total.IsPositive()
}

// CreateInvoice registers the order in Square, drafts an invoice against it,
// and publishes the draft. The Square order is keyed on the marketplace
// order so retries outside the bookkeeping gate stay idempotent downstream.
func (p *SquareProvider) CreateInvoice(ctx context.Context, order *models.CanonicalOrder) (*Result, error) {
	if order == nil {
		return nil, errors.New(errors.CodeValidation, "order is required")
	}

	orderParams := square.OrderCreateParams{
		ReferenceID:    order.ExternalOrderID,
		IdempotencyKey: p.client.NewIdempotencyKey("order." + order.ID.String()),
		LineItems:      toSquareLineItems(order),
	}
	sqOrder, err := p.client.CreateOrder(ctx, orderParams)
	if err != nil {
		return nil, err
	}
	sqOrderID := stringValue(sqOrder.GetID())
	if sqOrderID == "" {
		return nil, errors.New(errors.CodeDependency, "square order id missing")
	}

	invoiceParams := square.InvoiceCreateParams{
		OrderID:        sqOrderID,
		Title:          fmt.Sprintf("%s order %s", order.MarketplaceName, order.ExternalOrderID),
		IdempotencyKey: p.client.NewIdempotencyKey("invoice." + order.ID.String()),
	}
	invoice, err := p.client.CreateInvoice(ctx, invoiceParams)
	if err != nil {
		return nil, err
	}
	invoiceID := stringValue(invoice.GetID())
	if invoiceID == "" {
		return nil, errors.New(errors.CodeDependency, "square invoice id missing")
	}

	version := 0
	if v := invoice.GetVersion(); v != nil {
		version = *v
	}
	published, err := p.client.PublishInvoice(ctx, invoiceID, version)
	if err != nil {
		return nil, err
	}

	result := &Result{
		InvoiceID:     invoiceID,
		InvoiceNumber: stringValue(published.GetInvoiceNumber()),
	}
	if result.InvoiceNumber == "" {
		result.InvoiceNumber = stringValue(invoice.GetInvoiceNumber())
	}
	return result, nil
}

func toSquareLineItems(order *models.CanonicalOrder) []square.OrderLineItemParams {
	if len(order.LineItems) == 0 {
		return []square.OrderLineItemParams{{
			Name:           "Order total",
			Quantity:       1,
			UnitPriceCents: toCents(order.Total),
		}}
	}
	items := make([]square.OrderLineItemParams, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		items = append(items, square.OrderLineItemParams{
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: toCents(item.UnitPrice),
		})
	}
	return items
}

func toCents(value decimal.Decimal) int64 {
	return value.Shift(2).Round(0).IntPart()
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
