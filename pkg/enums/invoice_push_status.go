package enums

import "fmt"

// InvoicePushStatus tracks the outcome of the accounting invoice push for an order.
type InvoicePushStatus string

const (
	InvoicePushStatusNone    InvoicePushStatus = "none"
	InvoicePushStatusSuccess InvoicePushStatus = "success"
	InvoicePushStatusFailed  InvoicePushStatus = "failed"
)

var validInvoicePushStatuses = []InvoicePushStatus{
	InvoicePushStatusNone,
	InvoicePushStatusSuccess,
	InvoicePushStatusFailed,
}

// IsValid reports whether the value matches the invoice push status enum.
func (i InvoicePushStatus) IsValid() bool {
	for _, candidate := range validInvoicePushStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoicePushStatus converts the raw string to InvoicePushStatus.
func ParseInvoicePushStatus(value string) (InvoicePushStatus, error) {
	for _, candidate := range validInvoicePushStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice push status %q", value)
}
