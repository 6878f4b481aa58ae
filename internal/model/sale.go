package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the read-only view of a sale owned by the sales subsystem.
type Sale struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	CustomerName string          `json:"customer_name"`
	Net          decimal.Decimal `json:"net"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	IssuedAt     time.Time       `json:"issued_at"`
}
