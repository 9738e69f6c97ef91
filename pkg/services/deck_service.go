package services

import (
	"context"
	"log/slog"
	"strings"

	"flashdeck/pkg/decks"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
	"flashdeck/pkg/supabase"
)

// DeckBackend is the hosted rest API for decks.
type DeckBackend interface {
	ListDecks(ctx context.Context, accessToken string, q supabase.DeckQuery) ([]models.Deck, error)
	CreateDeck(ctx context.Context, accessToken string, nd models.NewDeck) (*models.Deck, error)
}

// TokenSource yields the access token deck requests run with.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// DeckService handles deck business logic
type DeckService struct {
	backend  DeckBackend
	attempts int
	logger   *slog.Logger
}

// NewDeckService creates a new deck service. attempts bounds retries of
// transient fetch failures; 1 means no retry.
func NewDeckService(backend DeckBackend, attempts int, logger *slog.Logger) *DeckService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeckService{
		backend:  backend,
		attempts: attempts,
		logger:   logger,
	}
}

// Source binds the service to one caller's tokens for a deck list view.
func (s *DeckService) Source(tokens TokenSource) decks.Source {
	return decks.SourceFunc(func(ctx context.Context, q decks.Query) ([]models.Deck, error) {
		return s.List(ctx, tokens, q)
	})
}

// List fetches the decks q selects.
func (s *DeckService) List(ctx context.Context, tokens TokenSource, q decks.Query) ([]models.Deck, error) {
	var out []models.Deck

	retryHandler := errors.NewRetryHandler(s.attempts, s.logger)
	err := retryHandler.Execute(ctx, func(ctx context.Context) error {
		token, err := tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		out, err = s.backend.ListDecks(ctx, token, supabase.DeckQuery{
			OwnerID:    q.OwnerID,
			OrderBy:    q.OrderBy,
			Descending: q.Descending,
			CountCards: q.CountCards,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create validates and inserts a deck owned by ownerID.
func (s *DeckService) Create(ctx context.Context, tokens TokenSource, ownerID, title, description string) (*models.Deck, error) {
	validator := errors.NewValidator()
	if result := validator.ValidateDeck(title, description); !result.IsValid {
		err := result.GetFirstError()
		err.Log(s.logger)
		return nil, err
	}
	if ownerID == "" {
		return nil, errors.From(errors.ErrNotAuthenticated, nil)
	}

	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	deck, err := s.backend.CreateDeck(ctx, token, models.NewDeck{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		if appErr, ok := errors.As(err); ok {
			appErr.WithContext("owner_id", ownerID).Log(s.logger)
		}
		return nil, err
	}

	s.logger.Info("deck created", slog.String("deck_id", deck.ID), slog.String("owner_id", ownerID))
	return deck, nil
}
