package auth

import (
	"context"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
)

// Fixed is a collaborator for a session that was established elsewhere,
// such as a bearer token on an API request or a CLI sign-in. It never
// changes and signing out only forgets it locally.
type Fixed struct {
	Session *models.AuthSession
}

func (f Fixed) GetCurrentSession(context.Context) (*models.AuthSession, error) {
	return f.Session, nil
}

func (f Fixed) OnSessionChange(func(Event)) func() {
	return func() {}
}

func (f Fixed) SignOut(context.Context) error {
	return nil
}

// AccessToken returns the fixed session's token.
func (f Fixed) AccessToken(context.Context) (string, error) {
	if f.Session == nil {
		return "", errors.From(errors.ErrNotAuthenticated, nil)
	}
	return f.Session.AccessToken, nil
}
