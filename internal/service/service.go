// Package service implements billing document issuance and provider reconciliation.
package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/events"
	"github.com/Ign14/PYMERP-sub000/internal/idempotency"
	"github.com/Ign14/PYMERP-sub000/internal/metrics"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/render"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
	"github.com/Ign14/PYMERP-sub000/internal/storage"
)

// IssueFiscalRequest asks for a fiscal document for a sale.
type IssueFiscalRequest struct {
	IdempotencyKey   string
	SaleID           string
	DocumentType     string
	TaxMode          string
	ConnectivityHint string
	ForceOffline     bool
	// Payload is forwarded verbatim to the provider.
	Payload json.RawMessage
}

// NonFiscalRequest asks for an internal document for a sale.
type NonFiscalRequest struct {
	SaleID       string
	DocumentType string
}

// FileDownload is an opened artifact. The caller closes Reader.
type FileDownload struct {
	Reader      io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

// BillingService defines the issuance use cases.
type BillingService interface {
	// IssueFiscal issues at most one fiscal document per (tenant, idempotency key).
	// Replays return the first result, including a *GatewayError when the first attempt failed.
	IssueFiscal(ctx context.Context, tenantID string, req IssueFiscalRequest) (*model.DocumentView, error)

	// CreateNonFiscal renders and stores an internal document. It is READY on return.
	CreateNonFiscal(ctx context.Context, tenantID string, req NonFiscalRequest) (*model.DocumentView, error)

	// GetDocument resolves a fiscal or non-fiscal document.
	GetDocument(ctx context.Context, tenantID, id string) (*model.DocumentView, error)

	// OpenFile streams the newest artifact of version, pdf unless contentType says xml.
	OpenFile(ctx context.Context, tenantID, id string, version model.FileVersion, contentType string) (*FileDownload, error)
}

// Dependencies are the collaborators shared by the billing components.
type Dependencies struct {
	Fiscal     repository.FiscalDocumentRepository
	NonFiscal  repository.NonFiscalDocumentRepository
	Files      repository.DocumentFileRepository
	Queue      repository.ContingencyQueueRepository
	Sales      repository.SaleRepository
	Keys       idempotency.Store
	FileStore  *storage.FileStore
	Renderer   render.Renderer
	Gateway    provider.Gateway
	Downloader provider.Downloader
	Publisher  events.Publisher
	Metrics    *metrics.Billing
	Logger     *logrus.Logger
	// ProviderName is recorded when the provider does not name itself.
	ProviderName string
	Now          func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Options bound the blocking points of issuance.
type Options struct {
	// AwaitTimeout is how long a replay waits for a concurrent request holding the key.
	AwaitTimeout time.Duration
	// ProviderTimeout bounds the synchronous provider call.
	ProviderTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AwaitTimeout <= 0 {
		o.AwaitTimeout = 5 * time.Second
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = 10 * time.Second
	}
	return o
}

type billingService struct {
	deps     Dependencies
	opts     Options
	archiver *OfficialArchiver
	log      *logrus.Entry
}

func NewBillingService(deps Dependencies, opts Options) BillingService {
	return &billingService{
		deps:     deps,
		opts:     opts.withDefaults(),
		archiver: NewOfficialArchiver(deps),
		log:      deps.Logger.WithField("module", "billing"),
	}
}

var offlineHints = map[string]bool{
	"OFFLINE":         true,
	"NO_CONNECTIVITY": true,
	"UNSTABLE":        true,
	"LOW":             true,
}

// shouldGoOffline decides the issuance branch from the caller's flags.
func shouldGoOffline(forceOffline bool, hint string) bool {
	return forceOffline || offlineHints[strings.ToUpper(strings.TrimSpace(hint))]
}

// BuildIssueRequest is the provider payload for doc. The queue stores it for replay.
func BuildIssueRequest(doc *model.FiscalDocument, payload json.RawMessage, now time.Time) provider.IssueRequest {
	return provider.IssueRequest{
		DocumentID:        doc.ID,
		TenantID:          doc.TenantID,
		SaleID:            doc.SaleID,
		DocumentType:      string(doc.DocumentType),
		TaxMode:           string(doc.TaxMode),
		ProvisionalNumber: doc.ProvisionalNumber,
		IdempotencyKey:    doc.IdempotencyKey,
		GeneratedAt:       now.UTC(),
		Payload:           payload,
	}
}
