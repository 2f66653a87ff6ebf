package model

import "time"

// User is a household member account on the server
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a bearer token issued at login
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has expired at now
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
