// Package model defines the data structures shared by the service,
// repository and handler layers.
package model

import "time"

// User is a registered account. Email is unique across users and is the
// login identifier; Username is only used for display.
//
// PasswordHash holds the full bcrypt output and is never serialised.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
