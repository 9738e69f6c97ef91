package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
)

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func (t *tokenResponse) session(now time.Time) *models.AuthSession {
	expiresAt := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		expiresAt = time.Unix(t.ExpiresAt, 0)
	}
	return &models.AuthSession{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt.UTC(),
		User:         models.User{ID: t.User.ID, Email: t.User.Email},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges an email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	var tok tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	}, &tok)
	if err != nil {
		return nil, classify(err, errors.ErrInvalidCredentials)
	}
	return tok.session(c.now()), nil
}

// SignUp registers a new user. When the project requires email confirmation
// no session is issued and ErrConfirmationRequired is returned.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	// The response is either a token response or a bare user.
	var resp struct {
		tokenResponse
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, classify(err, errors.New(errors.ErrTypeAuth, "SIGNUP_REJECTED", "sign up rejected").
			WithUserMessage("We couldn't create that account"))
	}
	if resp.AccessToken == "" {
		return nil, errors.From(errors.ErrConfirmationRequired, nil).WithContext("email", email)
	}
	return resp.tokenResponse.session(c.now()), nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	var tok tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &tok)
	if err != nil {
		return nil, classify(err, errors.ErrSessionExpired)
	}
	return tok.session(c.now()), nil
}

// GetUser returns the user an access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var u userResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	}, &u)
	if err != nil {
		return nil, classify(err, errors.ErrSessionExpired)
	}
	return &models.User{ID: u.ID, Email: u.Email}, nil
}

// SignOut revokes the session behind accessToken. A token the server no
// longer knows counts as signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		query:  url.Values{"scope": {"local"}},
		token:  accessToken,
	}, nil)
	if apiErr, ok := err.(*APIError); ok {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil
		}
	}
	if err != nil {
		return classify(err, errors.New(errors.ErrTypeAuth, "SIGNOUT_FAILED", "sign out failed"))
	}
	return nil
}

// AuthorizeURL is where the browser goes to sign in with an OAuth provider.
// The provider redirects back to redirectTo with a code for ExchangeCode.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	return c.endpoint("/auth/v1/authorize", url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	})
}

// ExchangeCode completes a PKCE OAuth sign-in.
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*models.AuthSession, error) {
	var tok tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"pkce"}},
		body:   map[string]string{"auth_code": authCode, "code_verifier": codeVerifier},
	}, &tok)
	if err != nil {
		return nil, classify(err, errors.New(errors.ErrTypeAuth, "CODE_EXCHANGE_FAILED", "oauth code exchange failed").
			WithUserMessage("Sign-in with that provider failed. Please try again"))
	}
	return tok.session(c.now()), nil
}
