package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeMapping     Code = "MAPPING_ERROR"
	CodeNoMapper    Code = "NO_MAPPER"
	CodeStorage     Code = "STORAGE_ERROR"
	CodeInvoiceSync Code = "INVOICE_SYNC_ERROR"
	CodeIdempotency Code = "IDEMPOTENCY_KEY_REUSED"
	CodeDependency  Code = "DEPENDENCY_ERROR"
	CodeInternal    Code = "INTERNAL_ERROR"
)

type Metadata struct {
	// Retryable signals that a later ingestion run may succeed.
	Retryable bool
	// BatchFatal aborts the whole batch instead of a single item.
	BatchFatal    bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:     false,
		PublicMessage: "validation failed",
	},
	CodeNotFound: {
		Retryable:     false,
		PublicMessage: "resource not found",
	},
	CodeMapping: {
		Retryable:     false,
		PublicMessage: "order could not be normalized",
	},
	CodeNoMapper: {
		Retryable:     false,
		BatchFatal:    true,
		PublicMessage: "no mapper registered for marketplace",
	},
	CodeStorage: {
		Retryable:     true,
		PublicMessage: "order persistence failed",
	},
	CodeInvoiceSync: {
		Retryable:     false,
		PublicMessage: "invoice sync failed",
	},
	CodeIdempotency: {
		Retryable:     false,
		PublicMessage: "idempotency key reused",
	},
	CodeDependency: {
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsBatchFatal reports whether err should abort the whole ingestion batch.
func IsBatchFatal(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).BatchFatal
}
