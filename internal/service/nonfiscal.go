package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/metrics"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

func (s *billingService) CreateNonFiscal(ctx context.Context, tenantID string, req NonFiscalRequest) (*model.DocumentView, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if req.SaleID == "" {
		return nil, invalid("SALE_REQUIRED", ErrSaleRequired)
	}
	docType := model.ParseNonFiscalDocumentType(req.DocumentType)
	if model.ParseFiscalDocumentType(req.DocumentType).Valid() {
		return nil, invalid("FISCAL_TYPE_NOT_ALLOWED", ErrFiscalTypeNotAllowed)
	}
	if !docType.Valid() {
		return nil, invalid("INVALID_DOCUMENT_TYPE", ErrInvalidDocumentType)
	}
	sale, err := s.deps.Sales.FindByID(ctx, tenantID, req.SaleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("SALE_NOT_FOUND", ErrSaleNotFound)
		}
		return nil, fmt.Errorf("load sale: %w", err)
	}

	now := s.deps.now()
	doc := model.NewNonFiscalDocument(tenantID, sale.ID, docType, now)
	if err := s.deps.NonFiscal.Create(ctx, doc, model.NonFiscalPrefix(now)); err != nil {
		return nil, fmt.Errorf("create non-fiscal document: %w", err)
	}

	rendered, err := s.deps.Renderer.RenderNonFiscal(ctx, doc, sale)
	if err != nil {
		s.rollbackNonFiscal(ctx, doc.ID)
		return nil, fmt.Errorf("render non-fiscal document: %w", err)
	}
	file, err := storeLocal(ctx, s.deps, doc.ID, model.FileKindNonFiscal, rendered)
	if err != nil {
		s.rollbackNonFiscal(ctx, doc.ID)
		return nil, fmt.Errorf("store local artifact: %w", err)
	}

	s.deps.Metrics.DocumentIssued(metrics.ModeNonFiscal)
	s.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"tenant_id":   tenantID,
		"number":      doc.Number,
	}).Info("non-fiscal document created")
	return model.NewNonFiscalView(doc, []model.DocumentFile{*file}), nil
}

func (s *billingService) rollbackNonFiscal(ctx context.Context, id string) {
	if err := s.deps.NonFiscal.Delete(ctx, id); err != nil {
		logging.LogError(s.deps.Logger, "billing", "rollbackNonFiscal", "delete document", map[string]any{"document_id": id}, err)
	}
}
