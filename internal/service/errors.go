package service

import (
	"errors"
	"fmt"

	"github.com/Ign14/PYMERP-sub000/internal/idempotency"
	"github.com/Ign14/PYMERP-sub000/internal/model"
)

var (
	ErrNotFound               = errors.New("document not found")
	ErrFileNotFound           = errors.New("document file not found")
	ErrTenantRequired         = errors.New("tenant is required")
	ErrForbidden              = errors.New("document belongs to another tenant")
	ErrIdempotencyKeyRequired = idempotency.ErrKeyRequired
	ErrIdempotencyKeyTooLong  = idempotency.ErrKeyTooLong
	ErrIdempotencyKeyMismatch = errors.New("idempotency key in body does not match header")
	ErrIdempotencyConflict    = errors.New("idempotency key was already used with a different payload")
	ErrIdempotencyInProgress  = errors.New("a request with this idempotency key is still in progress")
	ErrSaleRequired           = errors.New("sale id is required")
	ErrSaleNotFound           = errors.New("sale not found")
	ErrInvalidDocumentType    = errors.New("invalid document type")
	ErrInvalidTaxMode         = errors.New("invalid tax mode")
	ErrFiscalTypeNotAllowed   = errors.New("fiscal document types must be issued as invoices")
	ErrDocumentIDRequired     = errors.New("documentId is required")
	ErrStatusRequired         = errors.New("status is required")
	ErrUnsupportedStatus      = errors.New("unsupported webhook status")
	ErrInvalidFileVersion     = errors.New("file version must be LOCAL or OFFICIAL")
)

// ValidationError is a client error. Code is the stable identifier returned to callers.
type ValidationError struct {
	Code string
	Err  error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(code string, err error) error {
	return &ValidationError{Code: code, Err: err}
}

// GatewayError reports a synchronous provider failure. View is the FAILED document,
// identical on every replay of the same idempotency key.
type GatewayError struct {
	View    *model.DocumentView
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider failure: %s: %v", e.Message, e.Err)
	}
	return "provider failure: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AuthorizationError is returned when a tenant touches a document it does not own.
type AuthorizationError struct {
	TenantID   string
	DocumentID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("tenant %s may not access document %s", e.TenantID, e.DocumentID)
}

func (e *AuthorizationError) Unwrap() error { return ErrForbidden }

// authorize is the ownership guard run at the top of every document read.
func authorize(tenantID, ownerID, documentID string) error {
	if tenantID != ownerID {
		return &AuthorizationError{TenantID: tenantID, DocumentID: documentID}
	}
	return nil
}
