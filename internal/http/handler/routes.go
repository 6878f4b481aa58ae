package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/http/middleware"
	"github.com/Ign14/PYMERP-sub000/internal/security"
	"github.com/Ign14/PYMERP-sub000/internal/service"
)

// Routes are the collaborators behind the HTTP surface.
type Routes struct {
	// DB is pinged by /health. Nil when running on the in-memory repositories.
	DB       *sql.DB
	Billing  service.BillingService
	Webhooks service.WebhookReconciler
	Verifier *security.Verifier
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/health", HealthCheck(r.DB))
	app.Get("/healthz", LivenessProbe())

	if r.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{})))
	}

	billing := app.Group("/billing", middleware.Tenant())
	billing.Post("/invoices", IssueInvoice(r.Billing))
	billing.Post("/non-fiscal", CreateNonFiscal(r.Billing))
	billing.Get("/documents/:id", GetBillingDocument(r.Billing))
	billing.Get("/documents/:id/files/:version", DownloadDocumentFile(r.Billing))

	app.Post("/webhooks/billing", middleware.WebhookSignature(r.Verifier, r.Logger), HandleBillingWebhook(r.Webhooks))
}
