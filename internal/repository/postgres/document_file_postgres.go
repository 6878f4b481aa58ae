package postgres

import (
	"context"
	"database/sql"

	"github.com/Ign14/PYMERP-sub000/internal/database"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

// DocumentFilePostgres stores artifact metadata. Rows are insert-only.
type DocumentFilePostgres struct {
	db *sql.DB
}

func NewDocumentFilePostgres(db *sql.DB) *DocumentFilePostgres {
	return &DocumentFilePostgres{db: db}
}

var _ repository.DocumentFileRepository = (*DocumentFilePostgres)(nil)

// Create inserts f. An OFFICIAL file whose bytes are already archived for the
// document and content type returns repository.ErrDuplicateKey.
func (r *DocumentFilePostgres) Create(ctx context.Context, f *model.DocumentFile) error {
	const q = `
		INSERT INTO document_files (id, document_id, kind, version, content_type, storage_key, checksum, previous_file_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var previous sql.NullString
	if f.PreviousFileID != nil {
		previous = sql.NullString{String: *f.PreviousFileID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		f.ID,
		f.DocumentID,
		f.Kind,
		f.Version,
		f.ContentType,
		f.StorageKey,
		f.Checksum,
		previous,
		f.CreatedAt,
	)
	if database.IsUniqueViolation(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

func (r *DocumentFilePostgres) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentFile, error) {
	const q = `
		SELECT id, document_id, kind, version, content_type, storage_key, checksum, previous_file_id, created_at
		FROM document_files
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]model.DocumentFile, 0)
	for rows.Next() {
		var f model.DocumentFile
		var previous sql.NullString
		if err := rows.Scan(
			&f.ID,
			&f.DocumentID,
			&f.Kind,
			&f.Version,
			&f.ContentType,
			&f.StorageKey,
			&f.Checksum,
			&previous,
			&f.CreatedAt,
		); err != nil {
			return nil, err
		}
		if previous.Valid {
			id := previous.String
			f.PreviousFileID = &id
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
