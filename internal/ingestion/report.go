package ingestion

import "sync"

// ItemError records a single failed order within a batch.
type ItemError struct {
	ExternalOrderID string `json:"external_order_id"`
	Message         string `json:"message"`
}

// Report aggregates the outcome of one ingestion batch. Workers share a
// single report; all mutation goes through the locked add methods.
type Report struct {
	mu sync.Mutex

	Success         bool        `json:"success"`
	Created         int         `json:"created"`
	Updated         int         `json:"updated"`
	Skipped         int         `json:"skipped"`
	InvoicesCreated int         `json:"invoices_created"`
	Errors          []ItemError `json:"errors"`
}

func NewReport() *Report {
	return &Report{Success: true}
}

func (r *Report) addCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created++
}

func (r *Report) addUpdated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated++
}

func (r *Report) addSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}

func (r *Report) addInvoiceCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.InvoicesCreated++
}

func (r *Report) addError(externalOrderID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, ItemError{ExternalOrderID: externalOrderID, Message: message})
}

func (r *Report) fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Success = false
}

// HasErrors reports whether any item in the batch failed.
func (r *Report) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) > 0
}
