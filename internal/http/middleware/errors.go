package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error is returned by middlewares that reject a request. The global error
// handler renders it with Code in the standard error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func reject(status int, code, message string) error {
	return &Error{Status: status, Code: code, Message: message}
}

// StatusOf resolves the HTTP status an error returned by the handler chain maps to.
func StatusOf(err error) int {
	var mwErr *Error
	if errors.As(err, &mwErr) {
		return mwErr.Status
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
