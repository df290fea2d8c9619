// Package apperr defines the error kinds surfaced by the order engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveredOrderDelete protects delivered orders from soft deletion.
	ErrDeliveredOrderDelete = errors.New("delivered orders cannot be deleted")
	// ErrPermissionDenied is returned when the backend or the actor check refuses access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrQuotaExceeded is returned when the backend throttles the caller.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrBackendUnavailable marks transient failures; the caller may retry.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ValidationError is a pre-flight rejection of caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ProductMissingError means an order line references a product that no longer exists.
type ProductMissingError struct {
	ProductID string
}

func (e *ProductMissingError) Error() string {
	return fmt.Sprintf("product missing: %s", e.ProductID)
}

// InsufficientStockError means a product cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// NotFoundError means the target order does not exist.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order not found: %s", e.OrderID)
}

// IndexRequiredError means the backend lacks an index needed by a query.
type IndexRequiredError struct {
	Query string
	Hint  string
}

func (e *IndexRequiredError) Error() string {
	return fmt.Sprintf("index required for %s: %s", e.Query, e.Hint)
}

// UnexpectedError wraps anything outside the taxonomy.
type UnexpectedError struct {
	Details string
	Err     error
}

func (e *UnexpectedError) Error() string {
	if e.Err == nil {
		return "unexpected: " + e.Details
	}
	return fmt.Sprintf("unexpected: %s: %v", e.Details, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Kind names of the taxonomy, used for transport mapping and metric labels.
const (
	KindValidation      = "validation_failed"
	KindProductMissing  = "product_missing"
	KindInsufficient    = "insufficient_stock"
	KindDeliveredDelete = "delivered_orders_cannot_be_deleted"
	KindNotFound        = "not_found"
	KindIndexRequired   = "index_required"
	KindPermission      = "permission_denied"
	KindQuota           = "quota_exceeded"
	KindUnavailable     = "backend_unavailable"
	KindUnexpected      = "unexpected"
)

// Kind classifies err. A nil error has kind "".
func Kind(err error) string {
	var (
		ve  *ValidationError
		pme *ProductMissingError
		ise *InsufficientStockError
		nfe *NotFoundError
		ire *IndexRequiredError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &pme):
		return KindProductMissing
	case errors.As(err, &ise):
		return KindInsufficient
	case errors.Is(err, ErrDeliveredOrderDelete):
		return KindDeliveredDelete
	case errors.As(err, &nfe):
		return KindNotFound
	case errors.As(err, &ire):
		return KindIndexRequired
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrBackendUnavailable):
		return KindUnavailable
	default:
		return KindUnexpected
	}
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsBusiness reports whether err needs a user decision rather than an operator.
func IsBusiness(err error) bool {
	switch Kind(err) {
	case KindValidation, KindProductMissing, KindInsufficient, KindDeliveredDelete:
		return true
	}
	return false
}
