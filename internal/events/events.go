// Package events publishes billing document notifications for other subsystems.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	TypeDocumentAccepted = "billing.document.accepted"
	TypeDocumentRejected = "billing.document.rejected"
)

// DocumentAccepted is emitted once the authority accepts a fiscal document.
// Consumers must tolerate duplicates since webhooks are delivered at least once.
type DocumentAccepted struct {
	DocumentID string    `json:"documentId"`
	TenantID   string    `json:"tenantId"`
	Provider   string    `json:"provider,omitempty"`
	ExternalID string    `json:"externalId,omitempty"`
	Number     string    `json:"number,omitempty"`
	TrackID    string    `json:"trackId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// DocumentRejected carries the raw error list returned by the authority.
type DocumentRejected struct {
	DocumentID string    `json:"documentId"`
	TenantID   string    `json:"tenantId"`
	Provider   string    `json:"provider,omitempty"`
	TrackID    string    `json:"trackId,omitempty"`
	Errors     []string  `json:"errors"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishAccepted(ctx context.Context, ev DocumentAccepted) error
	PublishRejected(ctx context.Context, ev DocumentRejected) error
}

// LogPublisher writes events to the log. Used when Pub/Sub is not configured.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishAccepted(_ context.Context, ev DocumentAccepted) error {
	p.logger.WithFields(logrus.Fields{
		"event":       TypeDocumentAccepted,
		"document_id": ev.DocumentID,
		"tenant_id":   ev.TenantID,
		"provider":    ev.Provider,
		"number":      ev.Number,
		"track_id":    ev.TrackID,
	}).Info("document accepted")
	return nil
}

func (p *LogPublisher) PublishRejected(_ context.Context, ev DocumentRejected) error {
	p.logger.WithFields(logrus.Fields{
		"event":       TypeDocumentRejected,
		"document_id": ev.DocumentID,
		"tenant_id":   ev.TenantID,
		"provider":    ev.Provider,
		"errors":      ev.Errors,
	}).Info("document rejected")
	return nil
}
