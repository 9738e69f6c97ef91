package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/config"
	"flashdeck/pkg/decks"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
	"flashdeck/pkg/services"
)

// cliSession is a password sign-in made from the command line.
type cliSession struct {
	cfg    *config.Config
	logger *slog.Logger
	user   models.User
	tokens auth.Fixed
	decks  *services.DeckService
}

// readPassword prompts on stderr. FLASHDECK_PASSWORD skips the prompt, and
// a non-terminal stdin is read as a single line.
func readPassword(prompt string) (string, error) {
	if p := os.Getenv("FLASHDECK_PASSWORD"); p != "" {
		return p, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr) // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func signIn(ctx context.Context, load configLoader, email string) (*cliSession, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogFormat, os.Stderr, slog.LevelWarn)

	_, authService, deckService, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	sess, err := authService.SignIn(ctx, nil, email, password)
	if err != nil {
		return nil, cliError(err)
	}

	return &cliSession{
		cfg:    cfg,
		logger: logger,
		user:   sess.User,
		tokens: auth.Fixed{Session: sess},
		decks:  deckService,
	}, nil
}

// cliError turns an AppError into the message a person should see.
func cliError(err error) error {
	if _, ok := errors.As(err); ok {
		return fmt.Errorf("%s", errors.UserMessage(err))
	}
	return err
}

func decksCmd(load configLoader) *cobra.Command {
	var (
		email  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "decks",
		Short: "List a user's decks, newest first",
		Example: `  flashdeck decks --email me@example.com
  FLASHDECK_PASSWORD=... flashdeck decks --email me@example.com --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := signIn(ctx, load, email)
			if err != nil {
				return err
			}

			store := auth.NewStore(s.tokens, s.logger)
			defer store.Close()

			view := decks.NewView(store, s.decks.Source(s.tokens), decks.Options{
				Logger:     s.logger,
				CountCards: s.cfg.CountCards,
				OnRedirect: func() {
					s.logger.Warn("session ended before the decks loaded")
				},
			})
			defer view.Close()
			store.Initialize(ctx)

			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Duration(s.cfg.HTTPTimeout))
			defer cancelWait()
			snap, err := view.Await(waitCtx)
			if err != nil {
				return fmt.Errorf("decks did not load: %w", err)
			}

			switch {
			case snap.State == decks.RenderRedirect:
				return cliError(errors.From(errors.ErrNotAuthenticated, nil))
			case snap.FetchErr != nil:
				return cliError(snap.FetchErr)
			case asJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Decks)
			case snap.State == decks.RenderEmpty:
				fmt.Fprintln(cmd.OutOrStdout(), "No decks yet")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TITLE\tCARDS\tCREATED\tID")
			for _, d := range snap.Decks {
				created := ""
				if !d.CreatedAt.IsZero() {
					created = d.CreatedAt.Local().Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", d.Title, d.CardsCount, created, d.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print decks as JSON")
	cmd.MarkFlagRequired("email")

	return cmd
}

// sampleDescription is the description given to seeded decks.
func sampleDescription(n int) string {
	topics := []string{
		"Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
		"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		"Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris.",
		"Duis aute irure dolor in reprehenderit in voluptate velit esse.",
	}
	return topics[n%len(topics)]
}

func seedCmd(load configLoader) *cobra.Command {
	var (
		email string
		count int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sample decks for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := signIn(ctx, load, email)
			if err != nil {
				return err
			}

			for i := 1; i <= count; i++ {
				deck, err := s.decks.Create(ctx, s.tokens, s.user.ID, fmt.Sprintf("Sample deck %d", i), sampleDescription(i))
				if err != nil {
					return cliError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated deck with ID: %s\n", deck.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of decks to create")
	cmd.MarkFlagRequired("email")

	return cmd
}
