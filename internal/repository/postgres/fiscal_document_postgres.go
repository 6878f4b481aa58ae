package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ign14/PYMERP-sub000/internal/database"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

const fiscalColumns = `id, tenant_id, sale_id, document_type, tax_mode, status, provisional_number, number,
		provider, track_id, idempotency_key, payload_hash, offline, error_detail, sync_attempts, last_sync_at, created_at, updated_at`

// advisoryLockQuery serializes number assignment per tenant and prefix for the current transaction.
const advisoryLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// FiscalDocumentPostgres is a PostgreSQL implementation of repository.FiscalDocumentRepository.
type FiscalDocumentPostgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewFiscalDocumentPostgres(db *sql.DB) *FiscalDocumentPostgres {
	return &FiscalDocumentPostgres{db: db, now: time.Now}
}

var _ repository.FiscalDocumentRepository = (*FiscalDocumentPostgres)(nil)

// Create assigns the next provisional number and inserts the row in one transaction.
func (r *FiscalDocumentPostgres) Create(ctx context.Context, doc *model.FiscalDocument, numberPrefix string) error {
	const qLast = `
		SELECT provisional_number
		FROM fiscal_documents
		WHERE tenant_id = $1 AND provisional_number LIKE $2
		ORDER BY length(provisional_number) DESC, provisional_number DESC
		LIMIT 1
	`
	const qInsert = `
		INSERT INTO fiscal_documents (` + fiscalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		number, err := nextNumber(ctx, tx, qLast, doc.TenantID, numberPrefix)
		if err != nil {
			return err
		}
		doc.ProvisionalNumber = number

		_, err = tx.ExecContext(ctx, qInsert,
			doc.ID,
			doc.TenantID,
			doc.SaleID,
			doc.DocumentType,
			doc.TaxMode,
			doc.Status,
			doc.ProvisionalNumber,
			doc.Number,
			doc.Provider,
			doc.TrackID,
			doc.IdempotencyKey,
			doc.PayloadHash,
			doc.Offline,
			doc.ErrorDetail,
			doc.SyncAttempts,
			nullTime(doc.LastSyncAt),
			doc.CreatedAt,
			doc.UpdatedAt,
		)
		if database.IsUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return err
	})
}

func (r *FiscalDocumentPostgres) FindByID(ctx context.Context, id string) (*model.FiscalDocument, error) {
	q := `SELECT ` + fiscalColumns + ` FROM fiscal_documents WHERE id = $1`
	return scanFiscal(r.db.QueryRowContext(ctx, q, id))
}

func (r *FiscalDocumentPostgres) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FiscalDocument, error) {
	q := `SELECT ` + fiscalColumns + ` FROM fiscal_documents WHERE tenant_id = $1 AND idempotency_key = $2`
	return scanFiscal(r.db.QueryRowContext(ctx, q, tenantID, key))
}

func (r *FiscalDocumentPostgres) Update(ctx context.Context, id string, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	var out *model.FiscalDocument
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		doc, err := updateFiscalTx(ctx, tx, id, mutate, r.now())
		out = doc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *FiscalDocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM fiscal_documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiscal(row rowScanner) (*model.FiscalDocument, error) {
	var d model.FiscalDocument
	var lastSync sql.NullTime
	if err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.SaleID,
		&d.DocumentType,
		&d.TaxMode,
		&d.Status,
		&d.ProvisionalNumber,
		&d.Number,
		&d.Provider,
		&d.TrackID,
		&d.IdempotencyKey,
		&d.PayloadHash,
		&d.Offline,
		&d.ErrorDetail,
		&d.SyncAttempts,
		&lastSync,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	d.LastSyncAt = timePtr(lastSync)
	return &d, nil
}

// updateFiscalTx locks the document row, applies mutate and writes the mutable columns back.
func updateFiscalTx(ctx context.Context, tx *sql.Tx, id string, mutate repository.FiscalMutation, now time.Time) (*model.FiscalDocument, error) {
	qLock := `SELECT ` + fiscalColumns + ` FROM fiscal_documents WHERE id = $1 FOR UPDATE`
	const qUpdate = `
		UPDATE fiscal_documents
		SET status = $2, number = $3, provider = $4, track_id = $5, offline = $6,
			error_detail = $7, sync_attempts = $8, last_sync_at = $9, updated_at = $10
		WHERE id = $1
	`
	doc, err := scanFiscal(tx.QueryRowContext(ctx, qLock, id))
	if err != nil {
		return nil, err
	}
	if err := mutate(doc); err != nil {
		return nil, err
	}
	doc.UpdatedAt = now.UTC()

	if _, err := tx.ExecContext(ctx, qUpdate,
		doc.ID,
		doc.Status,
		doc.Number,
		doc.Provider,
		doc.TrackID,
		doc.Offline,
		doc.ErrorDetail,
		doc.SyncAttempts,
		nullTime(doc.LastSyncAt),
		doc.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update fiscal document: %w", err)
	}
	return doc, nil
}

// nextNumber takes the numbering lock for (tenant, prefix) and derives the next number
// from the highest one returned by lastQuery.
func nextNumber(ctx context.Context, tx *sql.Tx, lastQuery, tenantID, prefix string) (string, error) {
	if _, err := tx.ExecContext(ctx, advisoryLockQuery, tenantID+"|"+prefix); err != nil {
		return "", fmt.Errorf("lock numbering: %w", err)
	}
	var last string
	err := tx.QueryRowContext(ctx, lastQuery, tenantID, prefix+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read last number: %w", err)
	}
	return model.NextNumber(prefix, last), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
