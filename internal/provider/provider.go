// Package provider talks to the external tax authority gateway.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// IssueRequest is the payload submitted to the provider. It is also what the
// contingency queue stores and replays verbatim.
type IssueRequest struct {
	DocumentID        string          `json:"documentId"`
	TenantID          string          `json:"tenantId"`
	SaleID            string          `json:"saleId"`
	DocumentType      string          `json:"documentType"`
	TaxMode           string          `json:"taxMode"`
	ProvisionalNumber string          `json:"provisionalNumber"`
	IdempotencyKey    string          `json:"idempotencyKey"`
	GeneratedAt       time.Time       `json:"generatedAt"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// OfficialDocument is an artifact returned by the provider, either inline or by URL.
type OfficialDocument struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
	Content     []byte `json:"content,omitempty"`
	DownloadURL string `json:"url,omitempty"`
}

// IssueResult is the provider's acknowledgement of an issued document.
type IssueResult struct {
	Provider  string             `json:"provider"`
	TrackID   string             `json:"trackId"`
	Number    string             `json:"number"`
	Officials []OfficialDocument `json:"officialDocuments,omitempty"`
}

// Gateway issues documents against the tax authority.
type Gateway interface {
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
}

// Error is a provider failure. Transient errors are worth retrying.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried later. Errors that are not
// a *Error (network failures, timeouts) are transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}

// Message returns a display-safe description of a provider failure.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "provider timeout"
	}
	return "provider unavailable"
}

// Unconfigured is used when no provider URL is set; every call fails transiently
// so documents stay queued until a provider is configured.
type Unconfigured struct{}

func (Unconfigured) Issue(context.Context, IssueRequest) (*IssueResult, error) {
	return nil, &Error{Message: "provider not configured", Transient: true}
}
