package models

import (
	"time"

	"rental-backend/internal/fieldcrypt"
)

// Tenant as stored. Every PII column is sealed; IDs stay in the clear.
type Tenant struct {
	ID         int64             `json:"id"`
	UserID     *int64            `json:"user_id,omitempty"`
	FullName   fieldcrypt.Sealed `json:"full_name"`
	Phone      fieldcrypt.Sealed `json:"phone"`
	NationalID fieldcrypt.Sealed `json:"national_id"`
	Email      fieldcrypt.Sealed `json:"email"`
	Address    fieldcrypt.Sealed `json:"address"`
	Birthdate  fieldcrypt.Sealed `json:"birthdate"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SealedFields returns pointers to every encrypted column, in column order.
func (t *Tenant) SealedFields() []*fieldcrypt.Sealed {
	return []*fieldcrypt.Sealed{&t.FullName, &t.Phone, &t.NationalID, &t.Email, &t.Address, &t.Birthdate}
}
