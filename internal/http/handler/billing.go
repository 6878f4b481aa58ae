package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Ign14/PYMERP-sub000/internal/http/middleware"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/service"
)

// IdempotencyKeyHeader carries the client's idempotency key for fiscal issuance.
const IdempotencyKeyHeader = "Idempotency-Key"

// decodeBody parses and validates a JSON body. When ok is false the 400
// response has already been written and err is the write result.
func decodeBody(c *fiber.Ctx, dst any) (ok bool, err error) {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return false, writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(errorPayload{
			RequestID: middleware.GetRequestID(c),
			Error: errorEnvelope{
				Code:    "VALIDATION_FAILED",
				Message: "request body failed validation",
				Details: validationDetails(err),
			},
		})
	}
	return true, nil
}

// IssueInvoice issues a fiscal document.
//
// @Summary      Issue a fiscal document
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        X-Company-Id     header  string               true  "Company id"
// @Param        Idempotency-Key  header  string               true  "Idempotency key (max 100 chars)"
// @Param        request          body    IssueInvoiceRequest  true  "Invoice request"
// @Success      201  {object}  model.DocumentView
// @Failure      400  {object}  errorPayload
// @Failure      409  {object}  errorPayload
// @Failure      502  {object}  errorPayload
// @Router       /billing/invoices [post]
func IssueInvoice(svc service.BillingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IssueInvoiceRequest
		if ok, err := decodeBody(c, &body); !ok {
			return err
		}
		key, err := resolveIdempotencyKey(c.Get(IdempotencyKeyHeader), body.IdempotencyKey)
		if errors.Is(err, service.ErrIdempotencyKeyRequired) {
			return writeError(c, fiber.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required")
		}
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "IDEMPOTENCY_KEY_MISMATCH", "Idempotency-Key header and payload value do not match")
		}

		view, err := svc.IssueFiscal(c.UserContext(), middleware.TenantID(c), body.toService(key))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// CreateNonFiscal creates an internal document.
//
// @Summary      Create a non-fiscal document
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        X-Company-Id  header  string                    true  "Company id"
// @Param        request       body    NonFiscalDocumentRequest  true  "Document request"
// @Success      201  {object}  model.DocumentView
// @Failure      400  {object}  errorPayload
// @Router       /billing/non-fiscal [post]
func CreateNonFiscal(svc service.BillingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body NonFiscalDocumentRequest
		if ok, err := decodeBody(c, &body); !ok {
			return err
		}
		view, err := svc.CreateNonFiscal(c.UserContext(), middleware.TenantID(c), service.NonFiscalRequest{
			SaleID:       strings.TrimSpace(body.SaleID),
			DocumentType: body.DocumentType,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// GetBillingDocument returns a fiscal or non-fiscal document.
//
// @Summary      Get a billing document
// @Tags         billing
// @Produce      json
// @Param        X-Company-Id  header  string  true  "Company id"
// @Param        id            path    string  true  "Document id"
// @Success      200  {object}  model.DocumentView
// @Failure      400  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Router       /billing/documents/{id} [get]
func GetBillingDocument(svc service.BillingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		view, err := svc.GetDocument(c.UserContext(), middleware.TenantID(c), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	}
}

// DownloadDocumentFile streams the newest artifact of a version.
//
// @Summary      Download a document artifact
// @Tags         billing
// @Produce      application/pdf,application/xml
// @Param        X-Company-Id  header  string  true   "Company id"
// @Param        id            path    string  true   "Document id"
// @Param        version       path    string  true   "LOCAL or OFFICIAL"
// @Param        contentType   query   string  false  "pdf (default) or xml"
// @Success      200  {file}    binary
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Router       /billing/documents/{id}/files/{version} [get]
func DownloadDocumentFile(svc service.BillingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		version, ok := model.ParseFileVersion(c.Params("version"))
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_VERSION", "file version must be LOCAL or OFFICIAL")
		}

		dl, err := svc.OpenFile(c.UserContext(), middleware.TenantID(c), id, version, c.Query("contentType", "pdf"))
		if err != nil {
			return respondError(c, err)
		}
		// Attachment guesses a type from the extension, the stored one wins
		c.Attachment(dl.Filename)
		c.Set(fiber.HeaderContentType, dl.ContentType)
		// fasthttp closes the reader once the body is written
		return c.SendStream(dl.Reader, int(dl.Size))
	}
}
