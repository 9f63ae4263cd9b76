package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cash register statuses. "pending" is the column default and is kept for
// backwards compatibility with existing rows; the lifecycle only ever
// produces "open" and "closed".
const (
	RegisterStatusPending = "pending"
	RegisterStatusOpen    = "open"
	RegisterStatusClosed  = "closed"
)

// CashRegister is the daily register row: one per calendar day of operation.
// Opening is set once when the register is opened, Inflow/Outflow accumulate
// while it stays open, Closing is fixed when it is closed.
type CashRegister struct {
	ID        int             `json:"id" db:"id"`
	Opening   decimal.Decimal `json:"opening" db:"opening"`
	Inflow    decimal.Decimal `json:"inflow" db:"inflow"`
	Outflow   decimal.Decimal `json:"outflow" db:"outflow"`
	Closing   decimal.Decimal `json:"closing" db:"closing"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ProfessionalShare is one professional's slice of a day's inflow, used by
// the closing report. Professional keeps 70%, the clinic keeps 30%.
type ProfessionalShare struct {
	ProfessionalID int             `json:"professional_id"`
	Name           string          `json:"name"`
	Revenue        decimal.Decimal `json:"revenue"`
	Professional   decimal.Decimal `json:"professional"`
	Clinic         decimal.Decimal `json:"clinic"`
}
