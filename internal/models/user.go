package models

import "time"

// User is a wallet account. PasswordHash never leaves the server; the
// remaining fields form the public projection returned to clients.
type User struct {
	ID           int       `json:"id" example:"1"`                   // User ID
	Email        string    `json:"email" example:"user@example.com"` // Optional, unique when present
	Phone        string    `json:"phone" example:"+2348012345678"`   // Optional, unique when present
	PasswordHash string    `json:"-"`
	Balance      int64     `json:"balance" example:"1000"`
	IsActive     bool      `json:"is_active" example:"true"`
	CreatedAt    time.Time `json:"created_at"`
}
