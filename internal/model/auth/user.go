package auth

import "time"

// User is a person known through the identity provider.
type User struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"-"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Picture     string    `json:"picture,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Profile carries the mutable attributes refreshed on every login.
type Profile struct {
	PrincipalID string
	Name        string
	Email       string
	Picture     string
}
