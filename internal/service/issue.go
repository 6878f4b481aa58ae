package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/idempotency"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/metrics"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

// fiscalFingerprint is what the payload hash covers. Connectivity flags only pick
// the transport, so retrying the same invoice offline is still the same request.
type fiscalFingerprint struct {
	SaleID       string          `json:"saleId"`
	DocumentType string          `json:"documentType"`
	TaxMode      string          `json:"taxMode"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func hashFiscal(req IssueFiscalRequest) (string, error) {
	return idempotency.HashPayload(fiscalFingerprint{
		SaleID:       req.SaleID,
		DocumentType: string(model.ParseFiscalDocumentType(req.DocumentType)),
		TaxMode:      string(model.ParseTaxMode(req.TaxMode)),
		Payload:      req.Payload,
	})
}

func (s *billingService) IssueFiscal(ctx context.Context, tenantID string, req IssueFiscalRequest) (*model.DocumentView, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	key, err := idempotency.NormalizeKey(req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, ErrIdempotencyKeyTooLong) {
			return nil, invalid("IDEMPOTENCY_KEY_TOO_LONG", err)
		}
		return nil, invalid("IDEMPOTENCY_KEY_REQUIRED", err)
	}
	hash, err := hashFiscal(req)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}

	// A second pass happens only when the entry we waited on vanished.
	for attempt := 0; attempt < 2; attempt++ {
		won, err := s.deps.Keys.Reserve(ctx, tenantID, key, hash)
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if won {
			return s.issueReserved(ctx, tenantID, key, hash, req)
		}
		view, retry, err := s.replay(ctx, tenantID, key, hash)
		if !retry {
			return view, err
		}
	}
	return nil, ErrIdempotencyInProgress
}

// replay resolves a key held by an earlier request. retry is true when the
// reservation disappeared and the caller should try to reserve again.
func (s *billingService) replay(ctx context.Context, tenantID, key, hash string) (*model.DocumentView, bool, error) {
	entry, err := s.deps.Keys.FindEntry(ctx, tenantID, key)
	if err != nil {
		return nil, false, fmt.Errorf("find idempotency entry: %w", err)
	}
	if entry == nil {
		return nil, true, nil
	}
	if entry.PayloadHash != hash {
		return nil, false, ErrIdempotencyConflict
	}
	if !entry.Completed() {
		entry, err = s.deps.Keys.AwaitCompletion(ctx, tenantID, key, s.opts.AwaitTimeout)
		if err != nil {
			return nil, false, fmt.Errorf("await idempotency entry: %w", err)
		}
		if entry == nil {
			still, err := s.deps.Keys.FindEntry(ctx, tenantID, key)
			if err != nil {
				return nil, false, fmt.Errorf("find idempotency entry: %w", err)
			}
			if still == nil {
				return nil, true, nil
			}
			return nil, false, ErrIdempotencyInProgress
		}
		if entry.PayloadHash != hash {
			return nil, false, ErrIdempotencyConflict
		}
	}

	doc, err := s.awaitIssuance(ctx, entry.DocumentID)
	if errors.Is(err, repository.ErrNotFound) {
		// The first request rolled its document back after completing the key.
		if err := s.deps.Keys.Invalidate(ctx, tenantID, key); err != nil {
			return nil, false, fmt.Errorf("invalidate idempotency key: %w", err)
		}
		return nil, true, nil
	}
	if errors.Is(err, ErrIdempotencyInProgress) {
		return nil, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("load replayed document: %w", err)
	}
	view, err := s.replayView(ctx, doc)
	return view, false, err
}

const issuancePollInterval = 50 * time.Millisecond

// awaitIssuance reloads the document until the first request moves it out of PENDING,
// so concurrent callers see the same outcome. The window covers the provider call on top
// of AwaitTimeout; a document still PENDING after it is reported as in progress.
func (s *billingService) awaitIssuance(ctx context.Context, id string) (*model.FiscalDocument, error) {
	deadline := time.Now().Add(s.opts.AwaitTimeout + s.opts.ProviderTimeout)
	for {
		doc, err := s.deps.Fiscal.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status != model.FiscalPending {
			return doc, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrIdempotencyInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(issuancePollInterval):
		}
	}
}

func (s *billingService) replayView(ctx context.Context, doc *model.FiscalDocument) (*model.DocumentView, error) {
	view, err := s.fiscalView(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.DocumentIssued(metrics.ModeReplay)
	s.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"tenant_id":   doc.TenantID,
		"status":      doc.Status,
	}).Info("idempotent replay")
	if doc.Status == model.FiscalFailed {
		return view, &GatewayError{View: view, Message: doc.ErrorDetail}
	}
	return view, nil
}

func (s *billingService) issueReserved(ctx context.Context, tenantID, key, hash string, req IssueFiscalRequest) (*model.DocumentView, error) {
	// The store may have forgotten a key the database still remembers.
	existing, err := s.deps.Fiscal.FindByIdempotencyKey(ctx, tenantID, key)
	switch {
	case err == nil:
		return s.adopt(ctx, tenantID, key, hash, existing)
	case !errors.Is(err, repository.ErrNotFound):
		s.invalidate(ctx, tenantID, key)
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	docType := model.ParseFiscalDocumentType(req.DocumentType)
	taxMode := model.ParseTaxMode(req.TaxMode)
	if err := s.validateFiscal(docType, taxMode, req.SaleID); err != nil {
		s.invalidate(ctx, tenantID, key)
		return nil, err
	}
	sale, err := s.deps.Sales.FindByID(ctx, tenantID, req.SaleID)
	if err != nil {
		s.invalidate(ctx, tenantID, key)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("SALE_NOT_FOUND", ErrSaleNotFound)
		}
		return nil, fmt.Errorf("load sale: %w", err)
	}

	now := s.deps.now()
	doc := model.NewFiscalDocument(tenantID, sale.ID, docType, taxMode, key, now)
	doc.PayloadHash = hash
	if err := s.deps.Fiscal.Create(ctx, doc, model.ProvisionalPrefix(now)); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Another instance issued this key while our reservation was fresh.
			if winner, ferr := s.deps.Fiscal.FindByIdempotencyKey(ctx, tenantID, key); ferr == nil {
				return s.adopt(ctx, tenantID, key, hash, winner)
			}
		}
		s.invalidate(ctx, tenantID, key)
		return nil, fmt.Errorf("create fiscal document: %w", err)
	}
	s.complete(ctx, tenantID, key, hash, doc.ID)

	rendered, err := s.deps.Renderer.RenderFiscal(ctx, doc, sale)
	if err != nil {
		s.rollbackFiscal(ctx, doc, key)
		return nil, fmt.Errorf("render fiscal document: %w", err)
	}
	if _, err := storeLocal(ctx, s.deps, doc.ID, model.FileKindFiscal, rendered); err != nil {
		s.rollbackFiscal(ctx, doc, key)
		return nil, fmt.Errorf("store local artifact: %w", err)
	}

	issueReq := BuildIssueRequest(doc, req.Payload, now)
	if shouldGoOffline(req.ForceOffline, req.ConnectivityHint) {
		return s.issueOffline(ctx, doc, issueReq)
	}
	return s.issueOnline(ctx, doc, issueReq)
}

// adopt answers a reserved key with the document the database already holds for it.
// The store entry is rebuilt from the stored row so later callers compare against
// the payload that was actually issued.
func (s *billingService) adopt(ctx context.Context, tenantID, key, hash string, doc *model.FiscalDocument) (*model.DocumentView, error) {
	s.complete(ctx, tenantID, key, doc.PayloadHash, doc.ID)
	if doc.PayloadHash != hash {
		s.log.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"tenant_id":   tenantID,
		}).Warn("idempotency key reused with a different payload")
		return nil, ErrIdempotencyConflict
	}
	if doc.Status == model.FiscalPending {
		settled, err := s.awaitIssuance(ctx, doc.ID)
		if errors.Is(err, ErrIdempotencyInProgress) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("load issued document: %w", err)
		}
		doc = settled
	}
	return s.replayView(ctx, doc)
}

func (s *billingService) validateFiscal(docType model.FiscalDocumentType, taxMode model.TaxMode, saleID string) error {
	if saleID == "" {
		return invalid("SALE_REQUIRED", ErrSaleRequired)
	}
	if !docType.Valid() {
		return invalid("INVALID_DOCUMENT_TYPE", ErrInvalidDocumentType)
	}
	if !taxMode.Valid() {
		return invalid("INVALID_TAX_MODE", ErrInvalidTaxMode)
	}
	return nil
}

func (s *billingService) issueOffline(ctx context.Context, doc *model.FiscalDocument, issueReq provider.IssueRequest) (*model.DocumentView, error) {
	payload, err := json.Marshal(issueReq)
	if err != nil {
		return s.failIssuance(ctx, doc, "Contingency enqueue failed", fmt.Errorf("encode provider payload: %w", err))
	}
	now := s.deps.now()
	item := model.NewContingencyQueueItem(doc, payload, now)
	updated, err := s.deps.Queue.Enqueue(ctx, item, func(d *model.FiscalDocument) error {
		if err := d.TransitionTo(model.FiscalOfflinePending, now); err != nil {
			return err
		}
		d.Offline = true
		return nil
	})
	if err != nil {
		return s.failIssuance(ctx, doc, "Contingency enqueue failed", fmt.Errorf("enqueue contingency item: %w", err))
	}

	s.deps.Metrics.DocumentIssued(metrics.ModeOffline)
	s.log.WithFields(logrus.Fields{
		"document_id":        updated.ID,
		"tenant_id":          updated.TenantID,
		"provisional_number": updated.ProvisionalNumber,
	}).Info("document queued for contingency")
	return s.fiscalView(ctx, updated)
}

func (s *billingService) issueOnline(ctx context.Context, doc *model.FiscalDocument, issueReq provider.IssueRequest) (*model.DocumentView, error) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	res, err := s.deps.Gateway.Issue(pctx, issueReq)
	cancel()
	if err != nil {
		logging.LogError(s.deps.Logger, "billing", "issueOnline", "provider issue failed", map[string]any{"document_id": doc.ID}, err)
		view, gerr := s.markFailed(ctx, doc, provider.Message(err))
		if gerr != nil {
			return nil, gerr
		}
		return view, &GatewayError{View: view, Message: view.ErrorDetail, Err: err}
	}

	now := s.deps.now()
	updated, err := s.deps.Fiscal.Update(ctx, doc.ID, func(d *model.FiscalDocument) error {
		return d.MarkSent(providerName(res.Provider, s.deps.ProviderName), res.TrackID, res.Number, now)
	})
	if err != nil {
		return nil, fmt.Errorf("mark document sent: %w", err)
	}
	s.archiver.AttachIssued(ctx, updated.ID, res.Officials)
	s.deps.Metrics.DocumentIssued(metrics.ModeOnline)
	s.log.WithFields(logrus.Fields{
		"document_id": updated.ID,
		"tenant_id":   updated.TenantID,
		"track_id":    updated.TrackID,
	}).Info("document sent to provider")
	return s.fiscalView(ctx, updated)
}

// failIssuance marks the document FAILED for an internal error and reports err.
func (s *billingService) failIssuance(ctx context.Context, doc *model.FiscalDocument, detail string, err error) (*model.DocumentView, error) {
	logging.LogError(s.deps.Logger, "billing", "failIssuance", detail, map[string]any{"document_id": doc.ID}, err)
	if _, ferr := s.markFailed(ctx, doc, detail); ferr != nil {
		return nil, fmt.Errorf("%w (mark failed: %v)", err, ferr)
	}
	return nil, err
}

func (s *billingService) markFailed(ctx context.Context, doc *model.FiscalDocument, detail string) (*model.DocumentView, error) {
	now := s.deps.now()
	updated, err := s.deps.Fiscal.Update(ctx, doc.ID, func(d *model.FiscalDocument) error {
		return d.MarkFailed(detail, now)
	})
	if err != nil {
		return nil, fmt.Errorf("mark document failed: %w", err)
	}
	s.deps.Metrics.DocumentIssued(metrics.ModeFailed)
	return s.fiscalView(ctx, updated)
}

// rollbackFiscal removes a document whose local artifact could not be stored and frees its key.
func (s *billingService) rollbackFiscal(ctx context.Context, doc *model.FiscalDocument, key string) {
	if err := s.deps.Fiscal.Delete(ctx, doc.ID); err != nil {
		logging.LogError(s.deps.Logger, "billing", "rollbackFiscal", "delete document", map[string]any{"document_id": doc.ID}, err)
	}
	s.invalidate(ctx, doc.TenantID, key)
}

func (s *billingService) complete(ctx context.Context, tenantID, key, hash, documentID string) {
	if err := s.deps.Keys.Complete(ctx, tenantID, key, hash, documentID); err != nil {
		// The unique (tenant, key) index still deduplicates; waiters fall back to it.
		logging.LogError(s.deps.Logger, "billing", "complete", "complete idempotency key", map[string]any{"document_id": documentID}, err)
	}
}

func (s *billingService) invalidate(ctx context.Context, tenantID, key string) {
	if err := s.deps.Keys.Invalidate(ctx, tenantID, key); err != nil {
		logging.LogError(s.deps.Logger, "billing", "invalidate", "invalidate idempotency key", map[string]any{"tenant_id": tenantID}, err)
	}
}

func providerName(reported, fallback string) string {
	if reported != "" {
		return reported
	}
	return fallback
}
