package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ign14/PYMERP-sub000/internal/database"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

const queueColumns = `id, tenant_id, document_id, idempotency_key, status, provider_payload, sync_attempts,
		last_error, last_sync_at, next_attempt_at, locked_at, locked_by, created_at, updated_at`

// ContingencyQueuePostgres is the durable offline queue. Claims use FOR UPDATE SKIP LOCKED
// so several sync workers can drain it concurrently.
type ContingencyQueuePostgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewContingencyQueuePostgres(db *sql.DB) *ContingencyQueuePostgres {
	return &ContingencyQueuePostgres{db: db, now: time.Now}
}

var _ repository.ContingencyQueueRepository = (*ContingencyQueuePostgres)(nil)

func (r *ContingencyQueuePostgres) Enqueue(ctx context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	const q = `
		INSERT INTO contingency_queue_items (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var out *model.FiscalDocument
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		doc, err := updateFiscalTx(ctx, tx, item.DocumentID, mutate, r.now())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, q,
			item.ID,
			item.TenantID,
			item.DocumentID,
			item.IdempotencyKey,
			item.Status,
			[]byte(item.ProviderPayload),
			item.SyncAttempts,
			item.LastError,
			nullTime(item.LastSyncAt),
			nullTime(item.NextAttemptAt),
			nullTime(item.LockedAt),
			item.LockedBy,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if database.IsUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("insert queue item: %w", err)
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContingencyQueuePostgres) Claim(ctx context.Context, q repository.ClaimQuery) ([]model.ContingencyQueueItem, error) {
	const qSelect = `
		SELECT ` + queueColumns + `
		FROM contingency_queue_items
		WHERE (status = 'OFFLINE_PENDING' AND (next_attempt_at IS NULL OR next_attempt_at <= $1))
		   OR (status = 'SYNCING' AND locked_at <= $2)
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	const qLock = `
		UPDATE contingency_queue_items
		SET status = 'SYNCING', locked_at = $2, locked_by = $3, updated_at = $2
		WHERE id = $1
	`
	var items []model.ContingencyQueueItem
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, qSelect, q.Now, q.StaleBefore, q.Limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			item, err := scanQueueItem(rows)
			if err != nil {
				rows.Close()
				return err
			}
			items = append(items, *item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		lockedAt := q.Now.UTC()
		for i := range items {
			if _, err := tx.ExecContext(ctx, qLock, items[i].ID, lockedAt, q.WorkerID); err != nil {
				return fmt.Errorf("lock queue item %s: %w", items[i].ID, err)
			}
			items[i].Status = model.QueueSyncing
			items[i].LockedAt = &lockedAt
			items[i].LockedBy = q.WorkerID
			items[i].UpdatedAt = lockedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ContingencyQueuePostgres) Complete(ctx context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	const q = `DELETE FROM contingency_queue_items WHERE id = $1`
	var out *model.FiscalDocument
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		doc, err := updateFiscalTx(ctx, tx, item.DocumentID, mutate, r.now())
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, item.ID); err != nil {
			return fmt.Errorf("delete queue item: %w", err)
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContingencyQueuePostgres) RecordFailure(ctx context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	const q = `
		UPDATE contingency_queue_items
		SET status = $2, sync_attempts = $3, last_error = $4, last_sync_at = $5, next_attempt_at = $6,
			locked_at = NULL, locked_by = '', updated_at = $7
		WHERE id = $1
	`
	var out *model.FiscalDocument
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		now := r.now().UTC()
		doc, err := updateFiscalTx(ctx, tx, item.DocumentID, mutate, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q,
			item.ID,
			item.Status,
			item.SyncAttempts,
			item.LastError,
			nullTime(item.LastSyncAt),
			nullTime(item.NextAttemptAt),
			now,
		); err != nil {
			return fmt.Errorf("update queue item: %w", err)
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	item.LockedAt = nil
	item.LockedBy = ""
	return out, nil
}

func (r *ContingencyQueuePostgres) FindByDocumentID(ctx context.Context, documentID string) (*model.ContingencyQueueItem, error) {
	q := `SELECT ` + queueColumns + ` FROM contingency_queue_items WHERE document_id = $1`
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, q, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return item, err
}

func (r *ContingencyQueuePostgres) CountByStatus(ctx context.Context, status model.QueueStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM contingency_queue_items WHERE status = $1`
	var n int
	if err := r.db.QueryRowContext(ctx, q, status).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanQueueItem(row rowScanner) (*model.ContingencyQueueItem, error) {
	var it model.ContingencyQueueItem
	var payload []byte
	var lastSync, nextAttempt, lockedAt sql.NullTime
	if err := row.Scan(
		&it.ID,
		&it.TenantID,
		&it.DocumentID,
		&it.IdempotencyKey,
		&it.Status,
		&payload,
		&it.SyncAttempts,
		&it.LastError,
		&lastSync,
		&nextAttempt,
		&lockedAt,
		&it.LockedBy,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	it.ProviderPayload = json.RawMessage(payload)
	it.LastSyncAt = timePtr(lastSync)
	it.NextAttemptAt = timePtr(nextAttempt)
	it.LockedAt = timePtr(lockedAt)
	return &it, nil
}
