package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentCategory distinguishes fiscal documents from internal ones.
type DocumentCategory string

const (
	CategoryFiscal    DocumentCategory = "FISCAL"
	CategoryNonFiscal DocumentCategory = "NON_FISCAL"
)

// FiscalDocumentType is a document type that must be reported to the tax authority.
type FiscalDocumentType string

const (
	DocumentTypeFactura FiscalDocumentType = "FACTURA"
	DocumentTypeBoleta  FiscalDocumentType = "BOLETA"
)

// Valid reports whether t is a known fiscal document type.
func (t FiscalDocumentType) Valid() bool {
	return t == DocumentTypeFactura || t == DocumentTypeBoleta
}

// NonFiscalDocumentType is an internal document type that never reaches the provider.
type NonFiscalDocumentType string

const (
	NonFiscalCotizacion  NonFiscalDocumentType = "COTIZACION"
	NonFiscalComprobante NonFiscalDocumentType = "COMPROBANTE"
)

func (t NonFiscalDocumentType) Valid() bool {
	return t == NonFiscalCotizacion || t == NonFiscalComprobante
}

// TaxMode selects how taxes are applied to a fiscal document.
type TaxMode string

const (
	TaxModeAfecta TaxMode = "AFECTA"
	TaxModeExenta TaxMode = "EXENTA"
)

func (m TaxMode) Valid() bool {
	return m == TaxModeAfecta || m == TaxModeExenta
}

// ParseFiscalDocumentType normalizes raw input (trim, upper case).
func ParseFiscalDocumentType(s string) FiscalDocumentType {
	return FiscalDocumentType(strings.ToUpper(strings.TrimSpace(s)))
}

func ParseNonFiscalDocumentType(s string) NonFiscalDocumentType {
	return NonFiscalDocumentType(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseTaxMode normalizes raw input and defaults to AFECTA when blank.
func ParseTaxMode(s string) TaxMode {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return TaxModeAfecta
	}
	return TaxMode(v)
}

// NonFiscalStatus is the lifecycle status of an internal document.
type NonFiscalStatus string

const NonFiscalReady NonFiscalStatus = "READY"

// FiscalDocument is a tax document issued for a sale.
// Status changes must go through TransitionTo.
type FiscalDocument struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenant_id"`
	SaleID            string             `json:"sale_id"`
	DocumentType      FiscalDocumentType `json:"document_type"`
	TaxMode           TaxMode            `json:"tax_mode"`
	Status            FiscalStatus       `json:"status"`
	ProvisionalNumber string             `json:"provisional_number"`
	Number            string             `json:"number,omitempty"`
	Provider          string             `json:"provider,omitempty"`
	TrackID           string             `json:"track_id,omitempty"`
	IdempotencyKey    string             `json:"idempotency_key"`
	PayloadHash       string             `json:"-"`
	Offline           bool               `json:"offline"`
	ErrorDetail       string             `json:"error_detail,omitempty"`
	SyncAttempts      int                `json:"sync_attempts"`
	LastSyncAt        *time.Time         `json:"last_sync_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewFiscalDocument builds a PENDING fiscal document. The provisional number
// is assigned by the repository when the row is created.
func NewFiscalDocument(tenantID, saleID string, docType FiscalDocumentType, taxMode TaxMode, idempotencyKey string, now time.Time) *FiscalDocument {
	now = now.UTC()
	return &FiscalDocument{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		SaleID:         saleID,
		DocumentType:   docType,
		TaxMode:        taxMode,
		Status:         FiscalPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DisplayNumber is the official number when known, otherwise the provisional one.
func (d *FiscalDocument) DisplayNumber() string {
	if d.Number != "" {
		return d.Number
	}
	return d.ProvisionalNumber
}

// NonFiscalDocument is an internal document (quote, receipt) rendered locally only.
type NonFiscalDocument struct {
	ID           string                `json:"id"`
	TenantID     string                `json:"tenant_id"`
	SaleID       string                `json:"sale_id"`
	DocumentType NonFiscalDocumentType `json:"document_type"`
	Status       NonFiscalStatus       `json:"status"`
	Number       string                `json:"number"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func NewNonFiscalDocument(tenantID, saleID string, docType NonFiscalDocumentType, now time.Time) *NonFiscalDocument {
	now = now.UTC()
	return &NonFiscalDocument{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		SaleID:       saleID,
		DocumentType: docType,
		Status:       NonFiscalReady,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
