package models

import "time"

type User struct {
	ID                  int    `json:"id" example:"1"`                   // User ID
	Email               string `json:"email" example:"user@example.com"` // User email
	Nickname            string `json:"nickname" example:"mileageKing"`   // Display name
	PhoneNumber         string `json:"phoneNumber" example:"01012345678"`
	Balance             int64  `json:"balance" db:"balance"` // Mileage in won; mutated only through the ledger service
	Role                string `json:"role"`
	FailedLoginAttempts int    `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// UserRole values
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
