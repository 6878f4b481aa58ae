package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// TenantHeader carries the company the request acts for. It is resolved
	// upstream (gateway or auth layer) and trusted here.
	TenantHeader = "X-Company-Id"
	// TenantLocalKey stores the normalized tenant id in Fiber's context locals.
	TenantLocalKey = "tenant_id"
)

// Tenant requires a UUID company id on every request it guards.
func Tenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(TenantHeader))
		if raw == "" {
			return reject(fiber.StatusBadRequest, "TENANT_REQUIRED", "X-Company-Id header is required")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return reject(fiber.StatusBadRequest, "INVALID_TENANT", "X-Company-Id must be a UUID")
		}
		c.Locals(TenantLocalKey, id.String())
		return c.Next()
	}
}

// TenantID returns the tenant stored by Tenant, or "".
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(TenantLocalKey).(string)
	return id
}
