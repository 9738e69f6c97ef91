package supabase

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
)

// Claims are the access token claims the app reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// User returns the identity the token was issued to.
func (c *Claims) User() models.User {
	return models.User{ID: c.Subject, Email: c.Email}
}

// ParseClaims reads an access token. With a JWT secret configured the HS256
// signature and expiry are verified; without one the claims are decoded
// unverified and only expiry is checked, so the result must not be used for
// authorization on its own.
func (c *Client) ParseClaims(accessToken string) (*Claims, error) {
	claims := &Claims{}

	if c.jwtSecret != nil {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(30*time.Second),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(c.now),
		)
		if _, err := parser.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
			return c.jwtSecret, nil
		}); err != nil {
			return nil, errors.From(errors.ErrSessionExpired, err)
		}
		return claims, nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, errors.From(errors.ErrSessionExpired, err)
	}
	if claims.ExpiresAt != nil && c.now().After(claims.ExpiresAt.Time) {
		return nil, errors.From(errors.ErrSessionExpired, jwt.ErrTokenExpired)
	}
	return claims, nil
}

// VerifyAccessToken returns the user behind a bearer token. Tokens are
// verified locally when a JWT secret is configured, otherwise by the auth API.
func (c *Client) VerifyAccessToken(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, errors.From(errors.ErrNotAuthenticated, nil)
	}
	if c.jwtSecret != nil {
		claims, err := c.ParseClaims(accessToken)
		if err != nil {
			return nil, err
		}
		u := claims.User()
		if u.ID == "" {
			return nil, errors.From(errors.ErrNotAuthenticated, nil)
		}
		return &u, nil
	}
	return c.GetUser(ctx, accessToken)
}
