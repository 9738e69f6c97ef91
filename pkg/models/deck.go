package models

import "time"

// Deck is a named collection of flashcards belonging to one user.
type Deck struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CardsCount  int       `json:"cards_count"`
}

// NewDeck is the payload for creating a deck.
type NewDeck struct {
	OwnerID     string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
