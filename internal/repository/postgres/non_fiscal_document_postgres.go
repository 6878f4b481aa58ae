package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Ign14/PYMERP-sub000/internal/database"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

type NonFiscalDocumentPostgres struct {
	db *sql.DB
}

func NewNonFiscalDocumentPostgres(db *sql.DB) *NonFiscalDocumentPostgres {
	return &NonFiscalDocumentPostgres{db: db}
}

var _ repository.NonFiscalDocumentRepository = (*NonFiscalDocumentPostgres)(nil)

func (r *NonFiscalDocumentPostgres) Create(ctx context.Context, doc *model.NonFiscalDocument, numberPrefix string) error {
	const qLast = `
		SELECT number
		FROM non_fiscal_documents
		WHERE tenant_id = $1 AND number LIKE $2
		ORDER BY length(number) DESC, number DESC
		LIMIT 1
	`
	const qInsert = `
		INSERT INTO non_fiscal_documents (id, tenant_id, sale_id, document_type, status, number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		number, err := nextNumber(ctx, tx, qLast, doc.TenantID, numberPrefix)
		if err != nil {
			return err
		}
		doc.Number = number
		_, err = tx.ExecContext(ctx, qInsert,
			doc.ID,
			doc.TenantID,
			doc.SaleID,
			doc.DocumentType,
			doc.Status,
			doc.Number,
			doc.CreatedAt,
			doc.UpdatedAt,
		)
		return err
	})
}

func (r *NonFiscalDocumentPostgres) FindByID(ctx context.Context, id string) (*model.NonFiscalDocument, error) {
	const q = `
		SELECT id, tenant_id, sale_id, document_type, status, number, created_at, updated_at
		FROM non_fiscal_documents
		WHERE id = $1
	`
	var d model.NonFiscalDocument
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID,
		&d.TenantID,
		&d.SaleID,
		&d.DocumentType,
		&d.Status,
		&d.Number,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *NonFiscalDocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM non_fiscal_documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
