package services

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
)

// AuthBackend is the hosted auth API.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignUp(ctx context.Context, email, password string) (*models.AuthSession, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*models.AuthSession, error)
}

// SessionHolder is where a browser's session ends up once signed in.
type SessionHolder interface {
	Establish(ctx context.Context, sess *models.AuthSession) error
	SetVerifier(ctx context.Context, verifier string) error
	TakeVerifier(ctx context.Context) (string, error)
}

// AuthService handles authentication business logic
type AuthService struct {
	backend     AuthBackend
	providers   []string
	callbackURL string
	logger      *slog.Logger
}

// NewAuthService creates a new authentication service. callbackURL is where
// OAuth providers send the browser back to.
func NewAuthService(backend AuthBackend, providers []string, callbackURL string, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		backend:     backend,
		providers:   providers,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// Providers lists the enabled OAuth providers.
func (s *AuthService) Providers() []string {
	return s.providers
}

// SignIn checks an email and password with the backend and stores the
// resulting session on holder.
func (s *AuthService) SignIn(ctx context.Context, holder SessionHolder, email, password string) (*models.AuthSession, error) {
	email = strings.TrimSpace(email)

	validator := errors.NewValidator()
	if result := validator.ValidateEmail(email); !result.IsValid {
		return nil, s.fail(result.GetFirstError())
	}
	if password == "" {
		return nil, s.fail(errors.New(errors.ErrTypeValidation, "PASSWORD_EMPTY", "password cannot be empty").
			WithUserMessage("Please enter your password"))
	}

	sess, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, s.fail(err)
	}
	if holder != nil {
		if err := holder.Establish(ctx, sess); err != nil {
			return nil, s.fail(err)
		}
	}
	return sess, nil
}

// SignUp registers a new account. If the project requires email
// confirmation ErrConfirmationRequired is returned and nobody is signed in.
func (s *AuthService) SignUp(ctx context.Context, holder SessionHolder, email, password string) (*models.AuthSession, error) {
	email = strings.TrimSpace(email)

	validator := errors.NewValidator()
	if result := validator.ValidateEmail(email); !result.IsValid {
		return nil, s.fail(result.GetFirstError())
	}
	if result := validator.ValidatePassword(password); !result.IsValid {
		return nil, s.fail(result.GetFirstError())
	}

	sess, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		if errors.Is(err, errors.ErrConfirmationRequired) {
			s.logger.Info("sign up awaiting email confirmation")
			return nil, err
		}
		return nil, s.fail(err)
	}
	if holder != nil {
		if err := holder.Establish(ctx, sess); err != nil {
			return nil, s.fail(err)
		}
	}
	return sess, nil
}

// BeginOAuth starts a PKCE sign-in with provider and returns the URL to send
// the browser to.
func (s *AuthService) BeginOAuth(ctx context.Context, holder SessionHolder, provider string) (string, error) {
	validator := errors.NewValidator()
	if result := validator.ValidateProvider(provider, s.providers); !result.IsValid {
		return "", s.fail(result.GetFirstError())
	}

	verifier := oauth2.GenerateVerifier()
	if err := holder.SetVerifier(ctx, verifier); err != nil {
		return "", s.fail(err)
	}
	return s.backend.AuthorizeURL(provider, s.callbackURL, oauth2.S256ChallengeFromVerifier(verifier)), nil
}

// CompleteOAuth exchanges the code the provider returned for a session.
func (s *AuthService) CompleteOAuth(ctx context.Context, holder SessionHolder, code string) error {
	if code == "" {
		return s.fail(errors.New(errors.ErrTypeAuth, "OAUTH_CODE_MISSING", "callback without code").
			WithUserMessage("Sign-in with that provider failed. Please try again"))
	}

	verifier, err := holder.TakeVerifier(ctx)
	if err != nil {
		return s.fail(err)
	}
	sess, err := s.backend.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return s.fail(err)
	}
	if err := holder.Establish(ctx, sess); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *AuthService) fail(err error) error {
	if appErr, ok := errors.As(err); ok {
		appErr.Log(s.logger)
		return appErr
	}
	s.logger.Error("auth request failed", slog.String("error", err.Error()))
	return err
}
