package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ign14/PYMERP-sub000/internal/http/middleware"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/security"
	"github.com/Ign14/PYMERP-sub000/internal/service"
	serviceMocks "github.com/Ign14/PYMERP-sub000/internal/service/mocks"
)

const webhookSecret = "whsec-test"

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
}

func jsonRequest(method, target, tenant string, body any) *http.Request {
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	case nil:
	default:
		raw, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if tenant != "" {
		req.Header.Set(middleware.TenantHeader, tenant)
	}
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var res errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	t.Run("no database", func(t *testing.T) {
		memApp := fiber.New()
		memApp.Get("/health", HealthCheck(nil))

		resp, _ := memApp.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIssueInvoice(t *testing.T) {
	mockSvc := new(serviceMocks.MockBillingService)
	app := newApp()
	app.Post("/billing/invoices", middleware.Tenant(), IssueInvoice(mockSvc))

	tenant := uuid.NewString()
	body := map[string]any{"saleId": "sale-1", "documentType": "FACTURA"}

	send := func(key string, payload any) *http.Response {
		req := jsonRequest(http.MethodPost, "/billing/invoices", tenant, payload)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		view := &model.DocumentView{ID: uuid.NewString(), Category: model.CategoryFiscal, Status: string(model.FiscalSent)}
		mockSvc.On("IssueFiscal", mock.Anything, tenant, service.IssueFiscalRequest{
			IdempotencyKey: "key-1",
			SaleID:         "sale-1",
			DocumentType:   "FACTURA",
		}).Return(view, nil).Once()

		resp := send("key-1", body)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got model.DocumentView
		json.NewDecoder(resp.Body).Decode(&got)
		assert.Equal(t, view.ID, got.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("body repeats header key", func(t *testing.T) {
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.MatchedBy(func(r service.IssueFiscalRequest) bool {
			return r.IdempotencyKey == "key-2" && r.ForceOffline
		})).Return(&model.DocumentView{ID: uuid.NewString()}, nil).Once()

		resp := send("key-2", map[string]any{
			"idempotencyKey": "key-2",
			"saleId":         "sale-1",
			"documentType":   "FACTURA",
			"forceOffline":   true,
		})

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("header required even with body key", func(t *testing.T) {
		resp := send("", map[string]any{
			"idempotencyKey": "body-key",
			"saleId":         "sale-1",
			"documentType":   "FACTURA",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "IDEMPOTENCY_KEY_REQUIRED", decodeError(t, resp).Error.Code)
		mockSvc.AssertNotCalled(t, "IssueFiscal", mock.Anything, tenant, mock.MatchedBy(func(r service.IssueFiscalRequest) bool {
			return r.IdempotencyKey == "body-key"
		}))
	})

	t.Run("key mismatch", func(t *testing.T) {
		resp := send("key-1", map[string]any{
			"idempotencyKey": "other",
			"saleId":         "sale-1",
			"documentType":   "FACTURA",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "IDEMPOTENCY_KEY_MISMATCH", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		resp := send("key-1", "{not json")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		resp := send("key-1", map[string]any{"documentType": "FACTURA"})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		res := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_FAILED", res.Error.Code)
		assert.Equal(t, "required", res.Error.Details["saleId"])
	})

	t.Run("service validation error", func(t *testing.T) {
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, &service.ValidationError{Code: "INVALID_DOCUMENT_TYPE", Err: service.ErrInvalidDocumentType}).Once()

		resp := send("key-2", body)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_DOCUMENT_TYPE", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("provider failure carries the document", func(t *testing.T) {
		failed := &model.DocumentView{ID: uuid.NewString(), Status: string(model.FiscalFailed), ErrorDetail: "boom"}
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, &service.GatewayError{View: failed, Message: "boom"}).Once()

		resp := send("key-3", body)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		res := decodeError(t, resp)
		assert.Equal(t, "PROVIDER_ERROR", res.Error.Code)
		require.NotNil(t, res.Document)
		assert.Equal(t, failed.ID, res.Document.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("key in progress", func(t *testing.T) {
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, service.ErrIdempotencyInProgress).Once()

		resp := send("key-4", body)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
		assert.Equal(t, "IDEMPOTENCY_IN_PROGRESS", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("key reused", func(t *testing.T) {
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, service.ErrIdempotencyConflict).Once()

		resp := send("key-5", body)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("tenant required", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/billing/invoices", "", body))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "TENANT_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("IssueFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, errors.New("db down")).Once()

		resp := send("key-6", body)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestCreateNonFiscal(t *testing.T) {
	mockSvc := new(serviceMocks.MockBillingService)
	app := newApp()
	app.Post("/billing/non-fiscal", middleware.Tenant(), CreateNonFiscal(mockSvc))

	tenant := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		view := &model.DocumentView{ID: uuid.NewString(), Category: model.CategoryNonFiscal, Number: "NF-2026-00001"}
		mockSvc.On("CreateNonFiscal", mock.Anything, tenant, service.NonFiscalRequest{
			SaleID:       "sale-1",
			DocumentType: "COTIZACION",
		}).Return(view, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/billing/non-fiscal", tenant,
			map[string]any{"saleId": " sale-1 ", "documentType": "COTIZACION"}))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got model.DocumentView
		json.NewDecoder(resp.Body).Decode(&got)
		assert.Equal(t, "NF-2026-00001", got.Number)
		mockSvc.AssertExpectations(t)
	})

	t.Run("fiscal type rejected", func(t *testing.T) {
		mockSvc.On("CreateNonFiscal", mock.Anything, tenant, mock.Anything).
			Return(nil, &service.ValidationError{Code: "FISCAL_TYPE_NOT_ALLOWED", Err: service.ErrFiscalTypeNotAllowed}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/billing/non-fiscal", tenant,
			map[string]any{"saleId": "sale-1", "documentType": "FACTURA"}))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FISCAL_TYPE_NOT_ALLOWED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("validation failure", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/billing/non-fiscal", tenant, map[string]any{"saleId": "sale-1"}))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		res := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_FAILED", res.Error.Code)
		assert.Equal(t, "required", res.Error.Details["documentType"])
	})
}

func TestGetBillingDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockBillingService)
	app := newApp()
	app.Get("/billing/documents/:id", middleware.Tenant(), GetBillingDocument(mockSvc))

	tenant := uuid.NewString()
	get := func(id string) *http.Response {
		resp, err := app.Test(jsonRequest(http.MethodGet, "/billing/documents/"+id, tenant, nil))
		require.NoError(t, err)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("GetDocument", mock.Anything, tenant, id).
			Return(&model.DocumentView{ID: id, Category: model.CategoryFiscal}, nil).Once()

		resp := get(id)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.DocumentView
		json.NewDecoder(resp.Body).Decode(&got)
		assert.Equal(t, id, got.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("GetDocument", mock.Anything, tenant, id).Return(nil, service.ErrNotFound).Once()

		resp := get(id)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("other tenant", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("GetDocument", mock.Anything, tenant, id).
			Return(nil, &service.AuthorizationError{DocumentID: id}).Once()

		resp := get(id)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp := get("invalid-uuid")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("GetDocument", mock.Anything, tenant, id).Return(nil, errors.New("db error")).Once()

		resp := get(id)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDownloadDocumentFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockBillingService)
	app := newApp()
	app.Get("/billing/documents/:id/files/:version", middleware.Tenant(), DownloadDocumentFile(mockSvc))

	tenant := uuid.NewString()

	t.Run("streams the artifact", func(t *testing.T) {
		id := uuid.NewString()
		content := "<xml>official</xml>"
		mockSvc.On("OpenFile", mock.Anything, tenant, id, model.FileVersionOfficial, "xml").Return(&service.FileDownload{
			Reader:      io.NopCloser(strings.NewReader(content)),
			Size:        int64(len(content)),
			ContentType: model.ContentTypeXML,
			Filename:    "F-100-official.xml",
		}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/billing/documents/"+id+"/files/official?contentType=xml", tenant, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, model.ContentTypeXML, resp.Header.Get(fiber.HeaderContentType))
		assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "F-100-official.xml")
		got, _ := io.ReadAll(resp.Body)
		assert.Equal(t, content, string(got))
		mockSvc.AssertExpectations(t)
	})

	t.Run("defaults to pdf", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("OpenFile", mock.Anything, tenant, id, model.FileVersionLocal, "pdf").Return(&service.FileDownload{
			Reader:      io.NopCloser(strings.NewReader("%PDF")),
			Size:        4,
			ContentType: model.ContentTypePDF,
			Filename:    "F-100-local.pdf",
		}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/billing/documents/"+id+"/files/LOCAL", tenant, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, model.ContentTypePDF, resp.Header.Get(fiber.HeaderContentType))
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid version", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodGet, "/billing/documents/"+uuid.NewString()+"/files/draft", tenant, nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_FILE_VERSION", decodeError(t, resp).Error.Code)
	})

	t.Run("no file stored", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("OpenFile", mock.Anything, tenant, id, model.FileVersionOfficial, "pdf").Return(nil, service.ErrFileNotFound).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/billing/documents/"+id+"/files/OFFICIAL", tenant, nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "FILE_NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestHandleBillingWebhook(t *testing.T) {
	reconciler := new(serviceMocks.MockWebhookReconciler)
	app := newApp()
	verifier := security.NewVerifier(webhookSecret, time.Minute)
	app.Post("/webhooks/billing", middleware.WebhookSignature(verifier, logging.Discard()), HandleBillingWebhook(reconciler))

	signed := func(body []byte) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(security.HeaderName, security.Sign(webhookSecret, time.Now(), body))
		return req
	}

	t.Run("accepted", func(t *testing.T) {
		id := uuid.NewString()
		body, _ := json.Marshal(map[string]any{"documentId": " " + id + " ", "status": "ACCEPTED", "number": "F-100"})
		reconciler.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(r service.WebhookRequest) bool {
			return r.DocumentID == id && r.Status == "ACCEPTED" && r.Number == "F-100"
		})).Return(&service.WebhookResult{DocumentID: id, Status: model.FiscalAccepted, Number: "F-100"}, nil).Once()

		resp, _ := app.Test(signed(body))

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		var got service.WebhookResult
		json.NewDecoder(resp.Body).Decode(&got)
		assert.Equal(t, model.FiscalAccepted, got.Status)
		reconciler.AssertExpectations(t)
	})

	t.Run("file failures answer 502", func(t *testing.T) {
		id := uuid.NewString()
		body, _ := json.Marshal(map[string]any{"documentId": id, "status": "ACCEPTED"})
		reconciler.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(r service.WebhookRequest) bool {
			return r.DocumentID == id
		})).Return(&service.WebhookResult{
			DocumentID: id,
			Status:     model.FiscalAccepted,
			Files:      []service.FileOutcome{{ContentType: model.ContentTypePDF, Source: "https://provider.test/doc.pdf", Error: "status 404"}},
		}, nil).Once()

		resp, _ := app.Test(signed(body))

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		reconciler.AssertExpectations(t)
	})

	t.Run("unknown document", func(t *testing.T) {
		id := uuid.NewString()
		body, _ := json.Marshal(map[string]any{"documentId": id, "status": "REJECTED"})
		reconciler.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(r service.WebhookRequest) bool {
			return r.DocumentID == id
		})).Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(signed(body))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		reconciler.AssertExpectations(t)
	})

	t.Run("invalid transition", func(t *testing.T) {
		id := uuid.NewString()
		body, _ := json.Marshal(map[string]any{"documentId": id, "status": "REJECTED"})
		reconciler.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(r service.WebhookRequest) bool {
			return r.DocumentID == id
		})).Return(nil, &model.TransitionError{DocumentID: id, From: model.FiscalAccepted, To: model.FiscalRejected}).Once()

		resp, _ := app.Test(signed(body))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "INVALID_TRANSITION", decodeError(t, resp).Error.Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("invalid payload", func(t *testing.T) {
		resp, _ := app.Test(signed([]byte("{oops")))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, resp).Error.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		body := []byte(`{"documentId":"x","status":"ACCEPTED"}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.Header.Set(security.HeaderName, security.Sign("wrong", time.Now(), body))

		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_SIGNATURE", decodeError(t, resp).Error.Code)
	})
}

func TestRouting(t *testing.T) {
	app := newApp()

	reg := prometheus.NewRegistry()
	probe := prometheus.NewCounter(prometheus.CounterOpts{Name: "routing_probe_total", Help: "probe"})
	reg.MustRegister(probe)
	probe.Inc()

	RegisterRoutes(app, Routes{
		Billing:  new(serviceMocks.MockBillingService),
		Webhooks: new(serviceMocks.MockWebhookReconciler),
		Verifier: security.NewVerifier(webhookSecret, time.Minute),
		Gatherer: reg,
		Logger:   logging.Discard(),
	})

	t.Run("not found route", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/health", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})

	t.Run("billing requires tenant", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/billing/documents/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "TENANT_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		got, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(got), "routing_probe_total 1")
	})
}
