package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// OrderLineItemParams describes a single billable line on a Square order.
type OrderLineItemParams struct {
	Name           string
	SKU            string
	Quantity       int
	UnitPriceCents int64
	Currency       string
}

// OrderCreateParams contains the fields required to register a Square order.
type OrderCreateParams struct {
	ReferenceID    string
	IdempotencyKey string
	LineItems      []OrderLineItemParams
}

func (p OrderCreateParams) toSquareRequest(locationID, idempotencyKey string) *sq.CreateOrderRequest {
	order := &sq.Order{
		LocationID: locationID,
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		order.ReferenceID = ptrString(trimmed)
	}
	for _, item := range p.LineItems {
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		line := &sq.OrderLineItem{
			Quantity:       strconv.Itoa(quantity),
			BasePriceMoney: moneyPtr(item.UnitPriceCents, item.Currency),
		}
		if trimmed := strings.TrimSpace(item.Name); trimmed != "" {
			line.Name = ptrString(trimmed)
		}
		if trimmed := strings.TrimSpace(item.SKU); trimmed != "" {
			line.Note = ptrString(trimmed)
		}
		order.LineItems = append(order.LineItems, line)
	}
	return &sq.CreateOrderRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order:          order,
	}
}

// InvoiceCreateParams contains the fields required to draft a Square invoice.
type InvoiceCreateParams struct {
	OrderID        string
	InvoiceNumber  string
	Title          string
	IdempotencyKey string
}

func (p InvoiceCreateParams) toSquareRequest(locationID, idempotencyKey string) *sq.CreateInvoiceRequest {
	method := sq.InvoiceDeliveryMethodShareManually
	invoice := &sq.Invoice{
		LocationID:     ptrString(locationID),
		OrderID:        ptrString(p.OrderID),
		DeliveryMethod: &method,
	}
	if trimmed := strings.TrimSpace(p.InvoiceNumber); trimmed != "" {
		invoice.InvoiceNumber = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.Title); trimmed != "" {
		invoice.Title = ptrString(trimmed)
	}
	return &sq.CreateInvoiceRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Invoice:        invoice,
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
