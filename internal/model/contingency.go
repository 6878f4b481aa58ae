package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the status of a contingency queue item.
type QueueStatus string

const (
	QueueOfflinePending QueueStatus = "OFFLINE_PENDING"
	QueueSyncing        QueueStatus = "SYNCING"
	// QueueFailed marks a dead-lettered item. It is kept for operators and never claimed again.
	QueueFailed QueueStatus = "FAILED"
)

// ContingencyQueueItem holds a fiscal document that still has to reach the provider.
// There is at most one item per document.
type ContingencyQueueItem struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	DocumentID      string          `json:"document_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	Status          QueueStatus     `json:"status"`
	ProviderPayload json.RawMessage `json:"provider_payload"`
	SyncAttempts    int             `json:"sync_attempts"`
	LastError       string          `json:"last_error,omitempty"`
	LastSyncAt      *time.Time      `json:"last_sync_at,omitempty"`
	NextAttemptAt   *time.Time      `json:"next_attempt_at,omitempty"`
	LockedAt        *time.Time      `json:"locked_at,omitempty"`
	LockedBy        string          `json:"locked_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewContingencyQueueItem(doc *FiscalDocument, payload json.RawMessage, now time.Time) *ContingencyQueueItem {
	now = now.UTC()
	return &ContingencyQueueItem{
		ID:              uuid.NewString(),
		TenantID:        doc.TenantID,
		DocumentID:      doc.ID,
		IdempotencyKey:  doc.IdempotencyKey,
		Status:          QueueOfflinePending,
		ProviderPayload: payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
