package invoicing

import (
	"context"

	"github.com/channelsync/orders-backend/pkg/db/models"
)

// Result carries the identifiers of an invoice created downstream.
type Result struct {
	InvoiceID     string
	InvoiceNumber string
}

// Provider creates invoices in the external financial system.
type Provider interface {
	// ShouldCreateInvoice reports whether the order is eligible for an
	// invoice right now. Ineligible orders are left untouched so a later
	// update can still trigger a push.
	ShouldCreateInvoice(ctx context.Context, order *models.CanonicalOrder) bool

	CreateInvoice(ctx context.Context, order *models.CanonicalOrder) (*Result, error)
}
