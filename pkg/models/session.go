package models

import "time"

// User is the identity record returned by the hosted auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSession is a signed-in user's token pair.
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// ExpiresWithin reports whether the access token expires within d of now.
func (s *AuthSession) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}
