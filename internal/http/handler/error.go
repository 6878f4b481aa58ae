package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/http/middleware"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string              `json:"request_id"`
	Error     errorEnvelope       `json:"error"`
	Document  *model.DocumentView `json:"document,omitempty"`
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.GetRequestID(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// respondError renders the errors the billing components are known to return.
// Anything else is handed to the global ErrorHandler as an internal error.
func respondError(c *fiber.Ctx, err error) error {
	var (
		verr  *service.ValidationError
		gerr  *service.GatewayError
		terr  *model.TransitionError
		mwErr *middleware.Error
	)
	switch {
	case errors.As(err, &verr):
		return writeError(c, fiber.StatusBadRequest, verr.Code, verr.Err.Error())
	case errors.As(err, &gerr):
		return c.Status(fiber.StatusBadGateway).JSON(errorPayload{
			RequestID: middleware.GetRequestID(c),
			Error:     errorEnvelope{Code: "PROVIDER_ERROR", Message: gerr.Message},
			Document:  gerr.View,
		})
	case errors.As(err, &terr):
		return writeError(c, fiber.StatusConflict, "INVALID_TRANSITION", "document status does not allow this change")
	case errors.As(err, &mwErr):
		return writeError(c, mwErr.Status, mwErr.Code, mwErr.Message)
	case errors.Is(err, service.ErrTenantRequired):
		return writeError(c, fiber.StatusBadRequest, "TENANT_REQUIRED", "tenant is required")
	case errors.Is(err, service.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "document belongs to another company")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrFileNotFound):
		return writeError(c, fiber.StatusNotFound, "FILE_NOT_FOUND", "no file stored for requested version")
	case errors.Is(err, service.ErrIdempotencyConflict):
		return writeError(c, fiber.StatusConflict, "IDEMPOTENCY_KEY_REUSED", "idempotency key was already used with a different payload")
	case errors.Is(err, service.ErrIdempotencyInProgress):
		c.Set(fiber.HeaderRetryAfter, "1")
		return writeError(c, fiber.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is still in progress")
	}
	return err
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// Unexpected errors are logged and reported as INTERNAL_ERROR.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var mwErr *middleware.Error
		if errors.As(err, &mwErr) {
			return writeError(c, mwErr.Status, mwErr.Code, mwErr.Message)
		}

		status := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			if logger != nil {
				logging.LogError(logger, "http", "ErrorHandler", c.Method()+" "+c.Path(), map[string]any{"request_id": middleware.GetRequestID(c)}, err)
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}
