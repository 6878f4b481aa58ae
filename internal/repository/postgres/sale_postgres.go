package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

// SalePostgres reads the sales table owned by the sales subsystem.
type SalePostgres struct {
	db *sql.DB
}

func NewSalePostgres(db *sql.DB) *SalePostgres {
	return &SalePostgres{db: db}
}

var _ repository.SaleRepository = (*SalePostgres)(nil)

func (r *SalePostgres) FindByID(ctx context.Context, tenantID, saleID string) (*model.Sale, error) {
	const q = `
		SELECT id, tenant_id, customer_name, net, tax, total, issued_at
		FROM sales
		WHERE id = $1 AND tenant_id = $2
	`
	var s model.Sale
	if err := r.db.QueryRowContext(ctx, q, saleID, tenantID).Scan(
		&s.ID,
		&s.TenantID,
		&s.CustomerName,
		&s.Net,
		&s.Tax,
		&s.Total,
		&s.IssuedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
