package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/service"
)

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) IssueFiscal(ctx context.Context, tenantID string, req service.IssueFiscalRequest) (*model.DocumentView, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentView), args.Error(1)
}

func (m *MockBillingService) CreateNonFiscal(ctx context.Context, tenantID string, req service.NonFiscalRequest) (*model.DocumentView, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentView), args.Error(1)
}

func (m *MockBillingService) GetDocument(ctx context.Context, tenantID, id string) (*model.DocumentView, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentView), args.Error(1)
}

func (m *MockBillingService) OpenFile(ctx context.Context, tenantID, id string, version model.FileVersion, contentType string) (*service.FileDownload, error) {
	args := m.Called(ctx, tenantID, id, version, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FileDownload), args.Error(1)
}

type MockWebhookReconciler struct {
	mock.Mock
}

func (m *MockWebhookReconciler) HandleWebhook(ctx context.Context, req service.WebhookRequest) (*service.WebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WebhookResult), args.Error(1)
}
