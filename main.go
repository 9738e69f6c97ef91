package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"flashdeck/pkg/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "flashdeck",
		Short: "Flashcard decks on a hosted backend",
		Long: `flashdeck serves the flashcard web app: sign in, then see and
create your decks. Accounts and rows live in a Supabase project
configured through SUPABASE_URL and SUPABASE_ANON_KEY.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $FLASHDECK_CONFIG or ~/.config/flashdeck/config)")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		serveCmd(load),
		decksCmd(load),
		seedCmd(load),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

func serveCmd(load configLoader) *cobra.Command {
	var (
		addr      string
		templates string
		logFormat string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("templates") {
				cfg.TemplatesDir = templates
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = logFormat
			}

			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := newLogger(cfg.LogFormat, os.Stderr, level)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, logger)
			if err := app.startup(ctx); err != nil {
				app.shutdown()
				return err
			}
			return app.serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&templates, "templates", "", "Serve templates from this directory and reload them on change")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flashdeck %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// commandContext is the command's context, cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}
