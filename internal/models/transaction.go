package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds
const (
	KindInflow  = "inflow"
	KindOutflow = "outflow"
)

// Transaction is a single financial movement. RegisterID links it to the
// cash register that absorbed it; it is NULL when the movement was recorded
// on a day with no open register.
type Transaction struct {
	ID             int             `json:"id" db:"id"`
	ProfessionalID *int            `json:"professional_id,omitempty" db:"professional_id"`
	RegisterID     *int            `json:"register_id,omitempty" db:"register_id"`
	Kind           string          `json:"kind" db:"kind"`
	Description    string          `json:"description" db:"description"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod  string          `json:"payment_method" db:"payment_method"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
