package models

import "time"

// User represents a Telegram user known to the backend
type User struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"tg_id"`
	Handle     string    `json:"username"`
	Name       string    `json:"first_name"`
	Balance    float64   `json:"balance"`
	ReferredBy *int64    `json:"referred_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
