package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_sales",
		SQL: `CREATE TABLE IF NOT EXISTS sales (
  id            UUID          PRIMARY KEY,
  tenant_id     UUID          NOT NULL,
  customer_name TEXT          NOT NULL DEFAULT '',
  net           NUMERIC(14,2) NOT NULL DEFAULT 0,
  tax           NUMERIC(14,2) NOT NULL DEFAULT 0,
  total         NUMERIC(14,2) NOT NULL DEFAULT 0,
  issued_at     TIMESTAMPTZ   NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_fiscal_documents",
		SQL: `CREATE TABLE IF NOT EXISTS fiscal_documents (
  id                 UUID        PRIMARY KEY,
  tenant_id          UUID        NOT NULL,
  sale_id            UUID        NOT NULL,
  document_type      TEXT        NOT NULL,
  tax_mode           TEXT        NOT NULL,
  status             TEXT        NOT NULL,
  provisional_number TEXT        NOT NULL,
  number             TEXT        NOT NULL DEFAULT '',
  provider           TEXT        NOT NULL DEFAULT '',
  track_id           TEXT        NOT NULL DEFAULT '',
  idempotency_key    TEXT        NOT NULL,
  payload_hash       TEXT        NOT NULL DEFAULT '',
  offline            BOOLEAN     NOT NULL DEFAULT false,
  error_detail       VARCHAR(255) NOT NULL DEFAULT '',
  sync_attempts      INTEGER     NOT NULL DEFAULT 0,
  last_sync_at       TIMESTAMPTZ,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_unique_fiscal_documents_idempotency",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS ux_fiscal_documents_tenant_key ON fiscal_documents (tenant_id, idempotency_key);`,
	},
	{
		Name: "create_index_fiscal_documents_provisional_number",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_fiscal_documents_provisional ON fiscal_documents (tenant_id, provisional_number);`,
	},
	{
		Name: "create_table_non_fiscal_documents",
		SQL: `CREATE TABLE IF NOT EXISTS non_fiscal_documents (
  id            UUID        PRIMARY KEY,
  tenant_id     UUID        NOT NULL,
  sale_id       UUID        NOT NULL,
  document_type TEXT        NOT NULL,
  status        TEXT        NOT NULL,
  number        TEXT        NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_non_fiscal_documents_number",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_non_fiscal_documents_number ON non_fiscal_documents (tenant_id, number);`,
	},
	{
		Name: "create_table_document_files",
		SQL: `CREATE TABLE IF NOT EXISTS document_files (
  id               UUID        PRIMARY KEY,
  document_id      UUID        NOT NULL,
  kind             TEXT        NOT NULL,
  version          TEXT        NOT NULL,
  content_type     TEXT        NOT NULL,
  storage_key      TEXT        NOT NULL UNIQUE,
  checksum         TEXT        NOT NULL,
  previous_file_id UUID        REFERENCES document_files (id),
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_document_files_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_document_files_document ON document_files (document_id, created_at);`,
	},
	{
		Name: "create_unique_document_files_official",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS ux_document_files_official ON document_files (document_id, version, content_type, checksum) WHERE version = 'OFFICIAL';`,
	},
	{
		Name: "create_table_contingency_queue_items",
		SQL: `CREATE TABLE IF NOT EXISTS contingency_queue_items (
  id               UUID        PRIMARY KEY,
  tenant_id        UUID        NOT NULL,
  document_id      UUID        NOT NULL UNIQUE REFERENCES fiscal_documents (id),
  idempotency_key  TEXT        NOT NULL,
  status           TEXT        NOT NULL,
  provider_payload BYTEA       NOT NULL,
  sync_attempts    INTEGER     NOT NULL DEFAULT 0,
  last_error       VARCHAR(255) NOT NULL DEFAULT '',
  last_sync_at     TIMESTAMPTZ,
  next_attempt_at  TIMESTAMPTZ,
  locked_at        TIMESTAMPTZ,
  locked_by        TEXT        NOT NULL DEFAULT '',
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_contingency_queue_claim",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_contingency_queue_claim ON contingency_queue_items (status, next_attempt_at, created_at);`,
	},
}

// EnsureMigrated creates the billing schema unless the fiscal_documents table already exists.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *logrus.Logger, dbHost string) error {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"db_host":   dbHost,
	})

	log.WithField("event", "db_migration_check").Info("checking billing schema")

	var exists bool
	query := "SELECT to_regclass('public.fiscal_documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	log.WithField("event", "db_migration_start").Info("applying billing schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("billing schema created")

	return nil
}
