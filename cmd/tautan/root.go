package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ambiyansyah-risyal/tautan"
	"github.com/ambiyansyah-risyal/tautan/internal/config"
	"github.com/ambiyansyah-risyal/tautan/internal/logging"
	"github.com/ambiyansyah-risyal/tautan/tokenstore"
)

// app holds what the subcommands share once the root pre-run has finished.
type app struct {
	configPath string
	envFile    string
	baseURL    string
	devMode    bool
	logLevel   string
	trace      bool

	cfg       *config.Config
	client    *tautan.Client
	store     tokenstore.Store
	logger    zerolog.Logger
	logCloser io.Closer
	tracer    *sdktrace.TracerProvider
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "tautan",
		Short:         "Resilient REST client",
		Long:          "tautan sends REST calls with caching, rate limiting, retries and coordinated token refresh.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading TAUTAN_ variables")
	flags.StringVar(&a.baseURL, "base-url", "", "base URL relative paths are joined onto")
	flags.BoolVar(&a.devMode, "dev", false, "bypass client-side rate limiting")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&a.trace, "trace", false, "print request spans to stderr")

	rootCmd.AddCommand(
		newGetCmd(a),
		newBodyCmd(a, "post"),
		newBodyCmd(a, "put"),
		newBodyCmd(a, "patch"),
		newDeleteCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = a.baseURL
	}
	if cmd.Flags().Changed("dev") {
		cfg.DevMode = a.devMode
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logCloser = closer

	store, err := tokenstore.Open(cmd.Context(), cfg.TokenStore)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	a.store = store

	opts := append(cfg.ClientOptions(),
		tautan.WithTokenStore(store),
		tautan.WithLogger(tautan.NewZerologLogger(logger)),
	)
	if cfg.Logging.Debug || cfg.Logging.Level == "debug" {
		opts = append(opts, tautan.WithDebug())
	}
	if a.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		a.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		opts = append(opts, tautan.WithTracerProvider(a.tracer))
	}

	client := tautan.New(opts...)
	if !client.IsValid() {
		return client.ValidationError()
	}
	a.client = client

	a.logger.Debug().
		Str("base_url", cfg.BaseURL).
		Str("token_store", cfg.TokenStore.Type).
		Bool("dev_mode", cfg.DevMode).
		Msg("Client ready")
	return nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
