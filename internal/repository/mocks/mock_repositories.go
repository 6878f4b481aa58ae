package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

type MockFiscalDocumentRepository struct {
	mock.Mock
}

func (m *MockFiscalDocumentRepository) Create(ctx context.Context, doc *model.FiscalDocument, numberPrefix string) error {
	args := m.Called(ctx, doc, numberPrefix)
	return args.Error(0)
}

func (m *MockFiscalDocumentRepository) FindByID(ctx context.Context, id string) (*model.FiscalDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FiscalDocument), args.Error(1)
}

func (m *MockFiscalDocumentRepository) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FiscalDocument, error) {
	args := m.Called(ctx, tenantID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FiscalDocument), args.Error(1)
}

func (m *MockFiscalDocumentRepository) Update(ctx context.Context, id string, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FiscalDocument), args.Error(1)
}

func (m *MockFiscalDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockDocumentFileRepository struct {
	mock.Mock
}

func (m *MockDocumentFileRepository) Create(ctx context.Context, f *model.DocumentFile) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockDocumentFileRepository) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentFile, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentFile), args.Error(1)
}
