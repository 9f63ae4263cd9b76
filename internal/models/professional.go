package models

import "time"

// Professional is a service provider (dentist). WorkHours is free text like
// "8h às 18h" and feeds the appointment slot generator.
type Professional struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Specialty string    `json:"specialty" db:"specialty"`
	License   string    `json:"license" db:"license"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	WorkHours string    `json:"work_hours,omitempty" db:"work_hours"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
