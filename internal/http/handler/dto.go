package handler

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ign14/PYMERP-sub000/internal/service"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// IssueInvoiceRequest is the body of POST /billing/invoices.
type IssueInvoiceRequest struct {
	IdempotencyKey   string          `json:"idempotencyKey,omitempty" validate:"omitempty,max=100"`
	SaleID           string          `json:"saleId" validate:"required,max=64"`
	DocumentType     string          `json:"documentType" validate:"required,max=32"`
	TaxMode          string          `json:"taxMode,omitempty" validate:"omitempty,max=32"`
	ConnectivityHint string          `json:"connectivityHint,omitempty" validate:"omitempty,max=32"`
	ForceOffline     bool            `json:"forceOffline,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
}

func (r IssueInvoiceRequest) toService(key string) service.IssueFiscalRequest {
	return service.IssueFiscalRequest{
		IdempotencyKey:   key,
		SaleID:           strings.TrimSpace(r.SaleID),
		DocumentType:     r.DocumentType,
		TaxMode:          r.TaxMode,
		ConnectivityHint: r.ConnectivityHint,
		ForceOffline:     r.ForceOffline,
		Payload:          r.Payload,
	}
}

// NonFiscalDocumentRequest is the body of POST /billing/non-fiscal.
type NonFiscalDocumentRequest struct {
	SaleID       string `json:"saleId" validate:"required,max=64"`
	DocumentType string `json:"documentType" validate:"required,max=32"`
}

// resolveIdempotencyKey takes the key from the header. A body value may only repeat it.
func resolveIdempotencyKey(header, body string) (string, error) {
	header = strings.TrimSpace(header)
	body = strings.TrimSpace(body)
	if header == "" {
		return "", service.ErrIdempotencyKeyRequired
	}
	if body != "" && header != body {
		return "", service.ErrIdempotencyKeyMismatch
	}
	return header, nil
}
