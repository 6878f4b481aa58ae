package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
	"github.com/Ign14/PYMERP-sub000/internal/storage"
)

func (s *billingService) fiscalView(ctx context.Context, doc *model.FiscalDocument) (*model.DocumentView, error) {
	files, err := s.deps.Files.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}
	return model.NewFiscalView(doc, files), nil
}

// resolved is either a fiscal or a non-fiscal document.
type resolved struct {
	fiscal    *model.FiscalDocument
	nonFiscal *model.NonFiscalDocument
}

func (r resolved) tenantID() string {
	if r.fiscal != nil {
		return r.fiscal.TenantID
	}
	return r.nonFiscal.TenantID
}

func (r resolved) number() string {
	if r.fiscal != nil {
		return r.fiscal.DisplayNumber()
	}
	return r.nonFiscal.Number
}

func (s *billingService) resolve(ctx context.Context, tenantID, id string) (resolved, error) {
	if tenantID == "" {
		return resolved{}, ErrTenantRequired
	}
	if id == "" {
		return resolved{}, ErrNotFound
	}
	var r resolved
	fiscal, err := s.deps.Fiscal.FindByID(ctx, id)
	switch {
	case err == nil:
		r.fiscal = fiscal
	case errors.Is(err, repository.ErrNotFound):
		nonFiscal, nerr := s.deps.NonFiscal.FindByID(ctx, id)
		if errors.Is(nerr, repository.ErrNotFound) {
			return resolved{}, ErrNotFound
		}
		if nerr != nil {
			return resolved{}, fmt.Errorf("load non-fiscal document: %w", nerr)
		}
		r.nonFiscal = nonFiscal
	default:
		return resolved{}, fmt.Errorf("load fiscal document: %w", err)
	}
	if err := authorize(tenantID, r.tenantID(), id); err != nil {
		return resolved{}, err
	}
	return r, nil
}

func (s *billingService) GetDocument(ctx context.Context, tenantID, id string) (*model.DocumentView, error) {
	r, err := s.resolve(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	files, err := s.deps.Files.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}
	if r.fiscal != nil {
		return model.NewFiscalView(r.fiscal, files), nil
	}
	return model.NewNonFiscalView(r.nonFiscal, files), nil
}

func (s *billingService) OpenFile(ctx context.Context, tenantID, id string, version model.FileVersion, contentType string) (*FileDownload, error) {
	if version != model.FileVersionLocal && version != model.FileVersionOfficial {
		return nil, invalid("INVALID_FILE_VERSION", ErrInvalidFileVersion)
	}
	r, err := s.resolve(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	files, err := s.deps.Files.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}

	wantXML := strings.Contains(strings.ToLower(contentType), "xml")
	var match []model.DocumentFile
	for _, f := range files {
		if f.Version == version && f.IsXML() == wantXML {
			match = append(match, f)
		}
	}
	file := model.LatestFile(match, version)
	if file == nil {
		return nil, ErrFileNotFound
	}

	rc, info, err := s.deps.FileStore.Open(ctx, file.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	ext := storage.Extension(file.ContentType)
	return &FileDownload{
		Reader:      rc,
		Size:        info.Size,
		ContentType: file.ContentType,
		Filename:    downloadName(r.number(), id, version) + "." + ext,
	}, nil
}

func downloadName(number, id string, version model.FileVersion) string {
	base := number
	if base == "" {
		base = id
	}
	base = strings.ReplaceAll(base, "/", "-")
	if version == model.FileVersionOfficial {
		return base
	}
	return base + "-local"
}
