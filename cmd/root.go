// Package cmd defines the admitpipe command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/analysis"
	"github.com/admitlab/admitpipe/internal/config"
	"github.com/admitlab/admitpipe/internal/logging"
	"github.com/admitlab/admitpipe/internal/metrics"
	"github.com/admitlab/admitpipe/internal/normalize"
	"github.com/admitlab/admitpipe/internal/pipeline"
	"github.com/admitlab/admitpipe/internal/scrape"
	"github.com/admitlab/admitpipe/internal/standardize"
	"github.com/admitlab/admitpipe/internal/store"
)

var cfgFile string

// app bundles the wired service pieces the subcommands run against.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.ApplicantStore
	svc    *pipeline.Service
	cards  *analysis.CardWriter
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildApp loads configuration and wires every pipeline stage against the
// backing store.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, logger)
	if err != nil {
		return nil, err
	}

	parser, err := scrape.NewParser(cfg.Scrape.BaseURL)
	if err != nil {
		st.Close()
		return nil, err
	}

	cards, err := analysis.NewCardWriter(cfg.Analysis.CardsDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	defs, err := analysis.LoadDefinitions(cfg.Analysis.QueriesDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	var std standardize.Standardizer = standardize.Noop{}
	if cfg.Standardize.Enabled {
		std = standardize.NewClient(cfg.Standardize.Endpoint, cfg.Standardize.Timeout())
	}

	svc := pipeline.NewService(pipeline.Params{
		Fetcher: scrape.NewFetcher(scrape.FetcherConfig{
			UserAgent: cfg.Scrape.UserAgent,
			Delay:     cfg.Scrape.Delay(),
			Timeout:   cfg.Scrape.Timeout(),
		}, logger),
		Parser:       parser,
		Normalizer:   normalize.New(normalize.Config{DedupeByURL: true}, logger),
		Standardizer: std,
		Loader:       st,
		Runner:       analysis.NewRunner(st, logger),
		Cards:        cards,
		Definitions:  defs,
		BaseURL:      cfg.Scrape.BaseURL,
		StartPage:    cfg.Scrape.StartPage,
		PageCount:    cfg.Scrape.Pages,
		Logger:       logger,
	})

	return &app{cfg: cfg, logger: logger, store: st, svc: svc, cards: cards}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admitpipe",
		Short: "Graduate admissions results pipeline",
		Long: `admitpipe ingests self-reported graduate admissions results from the
survey listing pages, stores them in Postgres, and materializes a battery
of analysis answers as JSON cards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the ADMIT prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newInitDBCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
