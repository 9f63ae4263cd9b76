package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Appointment statuses
const (
	AppointmentStatusPending   = "pending"
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusDone      = "done"
	AppointmentStatusCanceled  = "canceled"
)

// Appointment is a scheduled visit. Date is "2006-01-02" and Time "15:04",
// matching the slot generator output.
type Appointment struct {
	ID             int             `json:"id" db:"id"`
	PatientID      int             `json:"patient_id" db:"patient_id"`
	ProfessionalID int             `json:"professional_id" db:"professional_id"`
	Date           string          `json:"date" db:"date"`
	Time           string          `json:"time" db:"time"`
	Service        string          `json:"service" db:"service"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod  string          `json:"payment_method" db:"payment_method"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
