package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

var queueCols = []string{
	"id", "tenant_id", "document_id", "idempotency_key", "status", "provider_payload", "sync_attempts",
	"last_error", "last_sync_at", "next_attempt_at", "locked_at", "locked_by", "created_at", "updated_at",
}

func sampleItem(doc model.FiscalDocument) model.ContingencyQueueItem {
	return model.ContingencyQueueItem{
		ID:              "9a4d2f61-51a4-4f0b-8f2e-5d1c7e6b3a20",
		TenantID:        doc.TenantID,
		DocumentID:      doc.ID,
		IdempotencyKey:  doc.IdempotencyKey,
		Status:          model.QueueOfflinePending,
		ProviderPayload: []byte(`{"documentId":"` + doc.ID + `"}`),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.CreatedAt,
	}
}

func queueRows(items ...model.ContingencyQueueItem) *sqlmock.Rows {
	rows := sqlmock.NewRows(queueCols)
	for _, it := range items {
		rows.AddRow(it.ID, it.TenantID, it.DocumentID, it.IdempotencyKey, string(it.Status), []byte(it.ProviderPayload),
			it.SyncAttempts, it.LastError, nil, nil, nil, it.LockedBy, it.CreatedAt, it.UpdatedAt)
	}
	return rows
}

func TestContingencyQueuePostgres_Enqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewContingencyQueuePostgres(db)
	doc := sampleFiscal(model.FiscalPending)
	item := sampleItem(doc)
	// Stored as sent: key order and spacing survive the round trip.
	item.ProviderPayload = []byte(`{"total": 1190.00, "documentId":"` + doc.ID + `"}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(doc.ID).WillReturnRows(fiscalRows(doc))
	mock.ExpectExec("UPDATE fiscal_documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`VALUES \(\$1, \$2, \$3, \$4, \$5, \$6,`).
		WithArgs(item.ID, item.TenantID, item.DocumentID, item.IdempotencyKey, "OFFLINE_PENDING", []byte(`{"total": 1190.00, "documentId":"`+doc.ID+`"}`),
			0, "", nil, nil, nil, "", item.CreatedAt, item.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Enqueue(context.Background(), &item, func(d *model.FiscalDocument) error {
		d.Offline = true
		return d.TransitionTo(model.FiscalOfflinePending, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, model.FiscalOfflinePending, got.Status)
	assert.True(t, got.Offline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContingencyQueuePostgres_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewContingencyQueuePostgres(db)
	doc := sampleFiscal(model.FiscalOfflinePending)
	item := sampleItem(doc)
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)
	q := repository.ClaimQuery{Limit: 10, WorkerID: "worker-a", Now: now, StaleBefore: now.Add(-2 * time.Minute)}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WithArgs(q.Now, q.StaleBefore, 10).WillReturnRows(queueRows(item))
	mock.ExpectExec(`SET status = 'SYNCING'`).WithArgs(item.ID, now, "worker-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items, err := repo.Claim(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.QueueSyncing, items[0].Status)
	assert.Equal(t, "worker-a", items[0].LockedBy)
	assert.Equal(t, string(item.ProviderPayload), string(items[0].ProviderPayload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContingencyQueuePostgres_Complete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewContingencyQueuePostgres(db)
	doc := sampleFiscal(model.FiscalOfflinePending)
	item := sampleItem(doc)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(doc.ID).WillReturnRows(fiscalRows(doc))
	mock.ExpectExec("UPDATE fiscal_documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contingency_queue_items WHERE id = $1")).WithArgs(item.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Complete(context.Background(), &item, func(d *model.FiscalDocument) error {
		return d.TransitionTo(model.FiscalSent, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, model.FiscalSent, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContingencyQueuePostgres_RecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewContingencyQueuePostgres(db)
	doc := sampleFiscal(model.FiscalOfflinePending)
	item := sampleItem(doc)
	next := doc.CreatedAt.Add(time.Minute)
	item.Status = model.QueueOfflinePending
	item.SyncAttempts = 2
	item.LastError = "provider down"
	item.NextAttemptAt = &next

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(doc.ID).WillReturnRows(fiscalRows(doc))
	mock.ExpectExec("UPDATE fiscal_documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE contingency_queue_items").
		WithArgs(item.ID, "OFFLINE_PENDING", 2, "provider down", nil, next, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.RecordFailure(context.Background(), &item, func(d *model.FiscalDocument) error {
		d.SyncAttempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContingencyQueuePostgres_Lookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewContingencyQueuePostgres(db)

	mock.ExpectQuery(`WHERE document_id = \$1`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(queueCols))
	_, err = repo.FindByDocumentID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contingency_queue_items`).WithArgs("OFFLINE_PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := repo.CountByStatus(context.Background(), model.QueueOfflinePending)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
