package models

import "time"

// Patient statuses
const (
	PatientStatusActive   = "active"
	PatientStatusInactive = "inactive"
)

// Patient holds a clinic patient. AsaasID is the customer id assigned by the
// payments provider when the patient is registered.
type Patient struct {
	ID         int       `json:"id" db:"id"`
	AsaasID    string    `json:"asaas_id" db:"asaas_id"`
	Name       string    `json:"name" db:"name"`
	CPF        string    `json:"cpf" db:"cpf"`
	Phone      string    `json:"phone" db:"phone"`
	Email      string    `json:"email" db:"email"`
	BirthDate  string    `json:"birth_date" db:"birth_date"`
	PostalCode string    `json:"postal_code" db:"postal_code"`
	Address    string    `json:"address,omitempty" db:"address"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
