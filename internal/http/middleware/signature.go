package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/security"
)

// WebhookSignature rejects callbacks whose X-Signature does not match the raw body.
func WebhookSignature(verifier *security.Verifier, logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := verifier.Verify(c.Get(security.HeaderName), c.Body())
		if err == nil {
			return c.Next()
		}
		reason := err.Error()
		var sigErr *security.SignatureError
		if errors.As(err, &sigErr) {
			reason = sigErr.Reason
		}
		logger.WithFields(logrus.Fields{
			"request_id": GetRequestID(c),
			"path":       c.Path(),
			"reason":     reason,
		}).Warn("webhook signature rejected")
		return reject(fiber.StatusUnauthorized, "INVALID_SIGNATURE", "invalid webhook signature")
	}
}
