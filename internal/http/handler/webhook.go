package handler

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Ign14/PYMERP-sub000/internal/service"
)

// HandleBillingWebhook applies a signed provider callback. The signature is
// checked by middleware.WebhookSignature before this handler runs.
//
// @Summary      Provider webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Signature  header  string                  true  "t=<unix>,v1=<hex hmac>"
// @Param        request      body    service.WebhookRequest  true  "Provider decision"
// @Success      202  {object}  service.WebhookResult
// @Failure      400  {object}  errorPayload
// @Failure      401  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      502  {object}  service.WebhookResult
// @Router       /webhooks/billing [post]
func HandleBillingWebhook(reconciler service.WebhookReconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.WebhookRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAYLOAD", "invalid webhook payload")
		}
		req.DocumentID = strings.TrimSpace(req.DocumentID)

		res, err := reconciler.HandleWebhook(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		// the decision is applied; a 502 asks the provider to resend the failed links
		if res.HasFileFailures() {
			return c.Status(fiber.StatusBadGateway).JSON(res)
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
}
