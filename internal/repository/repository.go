// Package repository contains data access abstractions for billing documents.
// Implementations live in subpackages (postgres, memory) and contain no business logic:
// status rules are applied by the mutate callbacks supplied by the service layer.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Ign14/PYMERP-sub000/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a unique constraint rejects an insert.
	ErrDuplicateKey = errors.New("duplicate key")
)

// FiscalMutation changes a locked fiscal document in place. Returning an error aborts the write.
type FiscalMutation func(doc *model.FiscalDocument) error

// FiscalDocumentRepository persists fiscal documents.
type FiscalDocumentRepository interface {
	// Create inserts doc and assigns the next provisional number under numberPrefix,
	// serialized per tenant and prefix so numbers stay monotonic.
	Create(ctx context.Context, doc *model.FiscalDocument, numberPrefix string) error

	FindByID(ctx context.Context, id string) (*model.FiscalDocument, error)

	// FindByIdempotencyKey returns the document issued for (tenantID, key).
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FiscalDocument, error)

	// Update locks the row, applies mutate and writes the result in one transaction.
	Update(ctx context.Context, id string, mutate FiscalMutation) (*model.FiscalDocument, error)

	// Delete removes a document that never left the issuing request.
	Delete(ctx context.Context, id string) error
}

// NonFiscalDocumentRepository persists internal documents.
type NonFiscalDocumentRepository interface {
	Create(ctx context.Context, doc *model.NonFiscalDocument, numberPrefix string) error
	FindByID(ctx context.Context, id string) (*model.NonFiscalDocument, error)
	Delete(ctx context.Context, id string) error
}

// DocumentFileRepository persists artifact metadata. Rows are immutable.
type DocumentFileRepository interface {
	// Create returns ErrDuplicateKey for a second OFFICIAL file with the same
	// document, content type and checksum.
	Create(ctx context.Context, f *model.DocumentFile) error
	// ListByDocument returns files ordered by creation time, oldest first.
	ListByDocument(ctx context.Context, documentID string) ([]model.DocumentFile, error)
}

// ClaimQuery selects queue items for one sync run.
type ClaimQuery struct {
	Limit    int
	WorkerID string
	Now      time.Time
	// StaleBefore makes SYNCING items locked before this instant claimable again.
	StaleBefore time.Time
}

// ContingencyQueueRepository persists offline documents awaiting the provider.
// Every method that touches both the queue and the document does so atomically.
type ContingencyQueueRepository interface {
	// Enqueue applies mutate to the item's document and inserts the item.
	Enqueue(ctx context.Context, item *model.ContingencyQueueItem, mutate FiscalMutation) (*model.FiscalDocument, error)

	// Claim marks up to q.Limit ready items as SYNCING for q.WorkerID.
	// Items claimed by a concurrent worker are skipped.
	Claim(ctx context.Context, q ClaimQuery) ([]model.ContingencyQueueItem, error)

	// Complete applies mutate to the document and removes the item.
	Complete(ctx context.Context, item *model.ContingencyQueueItem, mutate FiscalMutation) (*model.FiscalDocument, error)

	// RecordFailure applies mutate to the document and stores the item's retry bookkeeping
	// (status, attempts, last error, next attempt) while releasing its claim.
	RecordFailure(ctx context.Context, item *model.ContingencyQueueItem, mutate FiscalMutation) (*model.FiscalDocument, error)

	FindByDocumentID(ctx context.Context, documentID string) (*model.ContingencyQueueItem, error)

	CountByStatus(ctx context.Context, status model.QueueStatus) (int, error)
}

// SaleRepository reads sales owned by the sales subsystem.
type SaleRepository interface {
	FindByID(ctx context.Context, tenantID, saleID string) (*model.Sale, error)
}
