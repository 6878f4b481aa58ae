package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/events"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

// rejectionSeparator joins provider errors into ErrorDetail.
const rejectionSeparator = "; "

// WebhookLinks point at the official artifacts of an accepted document.
type WebhookLinks struct {
	PDF string `json:"pdf,omitempty"`
	XML string `json:"xml,omitempty"`
}

// WebhookRequest is a provider decision about a previously issued document.
type WebhookRequest struct {
	DocumentID string        `json:"documentId"`
	Status     string        `json:"status"`
	Provider   string        `json:"provider,omitempty"`
	TrackID    string        `json:"trackId,omitempty"`
	Number     string        `json:"number,omitempty"`
	ExternalID string        `json:"externalId,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Links      *WebhookLinks `json:"links,omitempty"`
}

// WebhookResult summarizes an applied webhook, one outcome per linked artifact.
type WebhookResult struct {
	DocumentID string             `json:"documentId"`
	Status     model.FiscalStatus `json:"status"`
	Number     string             `json:"number,omitempty"`
	Files      []FileOutcome      `json:"files,omitempty"`
}

// HasFileFailures reports whether any linked artifact could not be stored.
func (r *WebhookResult) HasFileFailures() bool {
	for _, f := range r.Files {
		if f.Failed() {
			return true
		}
	}
	return false
}

// WebhookReconciler applies provider callbacks. Applying the same payload twice is safe.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error)
}

type webhookReconciler struct {
	deps     Dependencies
	archiver *OfficialArchiver
	log      *logrus.Entry
}

func NewWebhookReconciler(deps Dependencies) WebhookReconciler {
	return &webhookReconciler{
		deps:     deps,
		archiver: NewOfficialArchiver(deps),
		log:      deps.Logger.WithField("module", "webhook"),
	}
}

func (w *webhookReconciler) HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, invalid("DOCUMENT_ID_REQUIRED", ErrDocumentIDRequired)
	}
	raw := strings.ToUpper(strings.TrimSpace(req.Status))
	if raw == "" {
		return nil, invalid("STATUS_REQUIRED", ErrStatusRequired)
	}
	status := model.FiscalStatus(raw)
	if status != model.FiscalAccepted && status != model.FiscalRejected {
		w.deps.Metrics.Webhook(raw, "unsupported")
		return nil, invalid("UNSUPPORTED_STATUS", fmt.Errorf("%w: %s", ErrUnsupportedStatus, req.Status))
	}
	rejections := nonBlank(req.Errors)

	now := w.deps.now()
	doc, err := w.deps.Fiscal.Update(ctx, req.DocumentID, func(d *model.FiscalDocument) error {
		if err := d.TransitionTo(status, now); err != nil {
			return err
		}
		if req.Provider != "" {
			d.Provider = req.Provider
		}
		if req.TrackID != "" {
			d.TrackID = req.TrackID
		}
		at := now
		d.LastSyncAt = &at
		d.SyncAttempts = 0
		d.Offline = false
		if status == model.FiscalAccepted {
			d.ErrorDetail = ""
			if n := firstNonBlank(req.Number, req.ExternalID); n != "" {
				d.Number = n
			}
			return nil
		}
		d.ErrorDetail = model.TruncateDetail(strings.Join(rejections, rejectionSeparator))
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.deps.Metrics.Webhook(raw, "not_found")
			return nil, ErrNotFound
		}
		w.deps.Metrics.Webhook(raw, "conflict")
		return nil, err
	}

	result := &WebhookResult{DocumentID: doc.ID, Status: doc.Status, Number: doc.Number}
	if status == model.FiscalAccepted {
		result.Files = w.attachLinks(ctx, doc.ID, req.Links)
		w.publishAccepted(ctx, doc, req.ExternalID)
	} else {
		w.publishRejected(ctx, doc, req.Errors)
	}

	outcome := "applied"
	if result.HasFileFailures() {
		outcome = "partial"
	}
	w.deps.Metrics.Webhook(raw, outcome)
	w.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"tenant_id":   doc.TenantID,
		"status":      doc.Status,
		"number":      doc.Number,
		"files":       len(result.Files),
		"result":      outcome,
	}).Info("webhook applied")
	return result, nil
}

// attachLinks downloads each linked artifact independently.
func (w *webhookReconciler) attachLinks(ctx context.Context, documentID string, links *WebhookLinks) []FileOutcome {
	if links == nil {
		return nil
	}
	var out []FileOutcome
	if links.PDF != "" {
		out = append(out, w.archiver.Fetch(ctx, documentID, model.ContentTypePDF, links.PDF))
	}
	if links.XML != "" {
		out = append(out, w.archiver.Fetch(ctx, documentID, model.ContentTypeXML, links.XML))
	}
	return out
}

func (w *webhookReconciler) publishAccepted(ctx context.Context, doc *model.FiscalDocument, externalID string) {
	err := w.deps.Publisher.PublishAccepted(ctx, events.DocumentAccepted{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Provider:   doc.Provider,
		ExternalID: externalID,
		Number:     doc.Number,
		TrackID:    doc.TrackID,
		OccurredAt: w.deps.now(),
	})
	if err != nil {
		logging.LogError(w.deps.Logger, "webhook", "publishAccepted", "publish document accepted", map[string]any{"document_id": doc.ID}, err)
	}
}

func (w *webhookReconciler) publishRejected(ctx context.Context, doc *model.FiscalDocument, errs []string) {
	if errs == nil {
		errs = []string{}
	}
	err := w.deps.Publisher.PublishRejected(ctx, events.DocumentRejected{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Provider:   doc.Provider,
		TrackID:    doc.TrackID,
		Errors:     errs,
		OccurredAt: w.deps.now(),
	})
	if err != nil {
		logging.LogError(w.deps.Logger, "webhook", "publishRejected", "publish document rejected", map[string]any{"document_id": doc.ID}, err)
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
