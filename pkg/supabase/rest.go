package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
)

// DeckQuery selects one owner's decks.
type DeckQuery struct {
	OwnerID    string
	OrderBy    string
	Descending bool
	// CountCards embeds an aggregated cards(count) per deck.
	CountCards bool
}

var orderableColumns = map[string]bool{
	"created_at": true,
	"title":      true,
}

// Values renders the query as PostgREST parameters.
func (q DeckQuery) Values() (url.Values, error) {
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, errors.New(errors.ErrTypeValidation, "OWNER_REQUIRED", "deck query needs an owner id")
	}
	order := q.OrderBy
	if order == "" {
		order = "created_at"
	}
	if !orderableColumns[order] {
		return nil, errors.New(errors.ErrTypeValidation, "ORDER_INVALID", "unsupported order column").
			WithContext("column", order)
	}
	dir := "asc"
	if q.Descending {
		dir = "desc"
	}

	sel := "*"
	if q.CountCards {
		sel = "*,cards(count)"
	}

	return url.Values{
		"select":  {sel},
		"user_id": {"eq." + q.OwnerID},
		"order":   {order + "." + dir},
	}, nil
}

// rowID accepts uuid strings and bigint ids alike.
type rowID string

func (id *rowID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("row id must be a string or number: %s", b)
	}
	*id = rowID(n.String())
	return nil
}

// timestampLayouts are the shapes Postgres timestamps arrive in.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp as returned by the rest API.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type timestamp time.Time

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = timestamp(time.Time{})
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = timestamp(parsed)
	return nil
}

type deckRow struct {
	ID          rowID     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   timestamp `json:"created_at"`
	Cards       []struct {
		Count int `json:"count"`
	} `json:"cards"`
}

// deck maps a row onto the Deck entity; a missing count reads as zero.
func (r deckRow) deck() models.Deck {
	d := models.Deck{
		ID:        string(r.ID),
		Title:     r.Title,
		CreatedAt: time.Time(r.CreatedAt),
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if len(r.Cards) > 0 && r.Cards[0].Count > 0 {
		d.CardsCount = r.Cards[0].Count
	}
	return d
}

// ListDecks returns the owner's decks in the order the server sorted them.
func (c *Client) ListDecks(ctx context.Context, accessToken string, q DeckQuery) ([]models.Deck, error) {
	params, err := q.Values()
	if err != nil {
		return nil, err
	}

	var rows []deckRow
	err = c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/decks",
		query:  params,
		token:  accessToken,
	}, &rows)
	if err != nil {
		return nil, classify(err, errors.New(errors.ErrTypeQuery, "DECKS_QUERY_FAILED", "deck query failed").
			WithUserMessage("We couldn't load your decks"))
	}

	decks := make([]models.Deck, 0, len(rows))
	for _, r := range rows {
		decks = append(decks, r.deck())
	}
	return decks, nil
}

// CreateDeck inserts a deck and returns the stored row.
func (c *Client) CreateDeck(ctx context.Context, accessToken string, nd models.NewDeck) (*models.Deck, error) {
	var rows []deckRow
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/decks",
		token:   accessToken,
		body:    nd,
		headers: map[string]string{"Prefer": "return=representation"},
	}, &rows)
	if err != nil {
		return nil, classify(err, errors.New(errors.ErrTypeQuery, "DECK_CREATE_FAILED", "deck insert failed").
			WithUserMessage("We couldn't create that deck"))
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrTypeQuery, "DECK_CREATE_EMPTY", "deck insert returned no row")
	}
	d := rows[0].deck()
	return &d, nil
}
