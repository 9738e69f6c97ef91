package storage

import (
	"context"
	"time"

	"flashdeck/pkg/models"
)

// Record is what the server persists for one browser session.
type Record struct {
	ID string `json:"id"`
	// Session is nil while the browser is signed out.
	Session *models.AuthSession `json:"session,omitempty"`
	// Verifier holds a pending OAuth PKCE code verifier.
	Verifier  string    `json:"verifier,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Session != nil {
		s := *r.Session
		c.Session = &s
	}
	return &c
}

// SessionStore persists browser session records.
// Load returns nil, nil when no record exists or it has expired.
type SessionStore interface {
	Save(ctx context.Context, rec *Record, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
}
