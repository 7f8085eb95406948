package models

import "time"

// Transaction is an append-only reward ledger entry. Rows are written once,
// in the same database transaction as the balance change they record, and
// never updated or deleted afterwards.
type Transaction struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Type      string    `json:"type" db:"type"`     // e.g. "reward"
	Reason    string    `json:"reason" db:"reason"` // e.g. "signup_bonus"
	Reference string    `json:"reference" db:"reference"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
