// Package pipeline wires the scrape, normalize, standardize, load and
// analysis stages into the two runnable actions the service exposes:
// pulling fresh survey data and refreshing the analysis cards.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/admissions"
	"github.com/admitlab/admitpipe/internal/analysis"
	"github.com/admitlab/admitpipe/internal/logging"
	"github.com/admitlab/admitpipe/internal/metrics"
	"github.com/admitlab/admitpipe/internal/normalize"
	"github.com/admitlab/admitpipe/internal/runguard"
	"github.com/admitlab/admitpipe/internal/scrape"
	"github.com/admitlab/admitpipe/internal/standardize"
	"github.com/admitlab/admitpipe/internal/store"
)

// Outcome classifies how a run request ended.
type Outcome string

const (
	// OutcomeCompleted means the run finished and its effects are durable.
	OutcomeCompleted Outcome = "completed"
	// OutcomeConflict means another run held the slot; nothing happened.
	OutcomeConflict Outcome = "conflict"
	// OutcomeFailed means the run started but aborted partway.
	OutcomeFailed Outcome = "failed"
)

// Loader persists a batch of normalized records.
type Loader interface {
	LoadBatch(ctx context.Context, records []admissions.Record) (store.LoadStats, error)
}

// IngestSummary reports one ingestion run.
type IngestSummary struct {
	Pages               int             `json:"pages"`
	PageErrors          int             `json:"page_errors"`
	Parsed              int             `json:"parsed"`
	Dropped             int             `json:"dropped"`
	Standardized        int             `json:"standardized"`
	StandardizeFailures int             `json:"standardize_failures,omitempty"`
	Load                store.LoadStats `json:"load"`
	Duration            time.Duration   `json:"-"`
}

// AnalysisSummary reports one analysis run.
type AnalysisSummary struct {
	Queries      int           `json:"queries"`
	Failed       int           `json:"failed"`
	CardsWritten int           `json:"cards_written"`
	Duration     time.Duration `json:"-"`
}

// Params collects the stage implementations a Service orchestrates.
type Params struct {
	Fetcher      *scrape.Fetcher
	Parser       *scrape.Parser
	Normalizer   *normalize.Normalizer
	Standardizer standardize.Standardizer
	Loader       Loader
	Runner       *analysis.Runner
	Cards        *analysis.CardWriter
	Definitions  []analysis.Definition
	BaseURL      string
	StartPage    int
	PageCount    int
	Logger       *zap.Logger
}

// Service runs the pipeline. A single Guard covers both actions, so an
// ingestion and an analysis run can never overlap each other either.
type Service struct {
	guard  runguard.Guard
	p      Params
	logger *zap.Logger
}

// NewService builds a Service from its stage implementations.
func NewService(p Params) *Service {
	return &Service{
		p:      p,
		logger: logging.NopIfNil(p.Logger),
	}
}

// Busy reports whether a run is currently in flight.
func (s *Service) Busy() bool {
	return s.guard.Busy()
}

// RunIngestion fetches the configured page window, parses and normalizes
// the entries, optionally standardizes names, and loads the batch. A
// page that fails to fetch is skipped and counted; the run only fails
// when the batch cannot be stored or the context ends.
func (s *Service) RunIngestion(ctx context.Context) (IngestSummary, Outcome, error) {
	if err := s.guard.TryStart(); err != nil {
		metrics.ObserveConflict()
		return IngestSummary{}, OutcomeConflict, err
	}
	defer s.guard.Finish()

	started := time.Now()
	summary, err := s.ingest(ctx)
	summary.Duration = time.Since(started)

	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeFailed
	}
	metrics.ObserveRun("ingest", string(outcome), summary.Duration.Seconds())
	return summary, outcome, err
}

func (s *Service) ingest(ctx context.Context) (IngestSummary, error) {
	var summary IngestSummary
	var entries []scrape.Entry

	err := s.p.Fetcher.Pages(ctx, s.p.BaseURL, s.p.StartPage, s.p.PageCount, func(page scrape.Page, err error) error {
		if err != nil {
			summary.PageErrors++
			metrics.ObservePage("error")
			s.logger.Warn("page fetch failed", zap.Int("page", page.Number), zap.Error(err))
			return nil
		}
		parsed, err := s.p.Parser.Parse(page)
		if err != nil {
			summary.PageErrors++
			metrics.ObservePage("error")
			s.logger.Warn("page parse failed", zap.Int("page", page.Number), zap.Error(err))
			return nil
		}
		summary.Pages++
		metrics.ObservePage("ok")
		entries = append(entries, parsed...)
		return nil
	})
	if err != nil {
		return summary, err
	}

	result := s.p.Normalizer.Normalize(entries)
	summary.Parsed = result.Attempted
	summary.Dropped = len(result.Dropped)
	metrics.ObserveRecords("dropped", summary.Dropped)

	s.standardizeAll(ctx, result.Records, &summary)

	stats, err := s.p.Loader.LoadBatch(ctx, result.Records)
	summary.Load = stats
	if err != nil {
		return summary, err
	}
	metrics.ObserveRecords("inserted", stats.Inserted)
	metrics.ObserveRecords("skipped", stats.Skipped)
	metrics.ObserveRecords("rejected", stats.Rejected)

	s.logger.Info("ingestion finished",
		zap.Int("pages", summary.Pages),
		zap.Int("page_errors", summary.PageErrors),
		zap.Int("parsed", summary.Parsed),
		zap.Int("dropped", summary.Dropped),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
	)
	return summary, nil
}

// standardizeAll asks the canonizer for cleaned program and university
// names. Canonization is best effort: a failing call leaves the record's
// scraped names in place and the run continues.
func (s *Service) standardizeAll(ctx context.Context, records []admissions.Record, summary *IngestSummary) {
	if s.p.Standardizer == nil {
		return
	}
	for i := range records {
		canon, err := s.p.Standardizer.Canonize(ctx, records[i].Program, records[i].University)
		if err != nil {
			summary.StandardizeFailures++
			s.logger.Warn("standardize failed",
				zap.String("url", records[i].URL),
				zap.Error(err),
			)
			continue
		}
		if records[i].AdoptCanonical(canon.Program, canon.University) {
			summary.Standardized++
		}
	}
}

// RunAnalysis executes the saved query battery loaded at wiring time and
// rewrites the answer cards. Individual query failures are reported in
// the summary but do not fail the run.
func (s *Service) RunAnalysis(ctx context.Context) (AnalysisSummary, Outcome, error) {
	if err := s.guard.TryStart(); err != nil {
		metrics.ObserveConflict()
		return AnalysisSummary{}, OutcomeConflict, err
	}
	defer s.guard.Finish()

	started := time.Now()
	summary, err := s.analyze(ctx)
	summary.Duration = time.Since(started)

	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeFailed
	}
	metrics.ObserveRun("analyze", string(outcome), summary.Duration.Seconds())
	return summary, outcome, err
}

func (s *Service) analyze(ctx context.Context) (AnalysisSummary, error) {
	var summary AnalysisSummary

	defs := s.p.Definitions
	if len(defs) == 0 {
		return summary, fmt.Errorf("no query definitions configured")
	}
	summary.Queries = len(defs)

	results, err := s.p.Runner.RunAll(ctx, defs)
	if err != nil {
		return summary, err
	}
	for _, res := range results {
		if res.Status == analysis.QueryFailed {
			summary.Failed++
		}
	}

	written, err := s.p.Cards.Write(results)
	summary.CardsWritten = written
	if err != nil {
		return summary, err
	}
	metrics.ObserveCards(written)

	s.logger.Info("analysis finished",
		zap.Int("queries", summary.Queries),
		zap.Int("failed", summary.Failed),
		zap.Int("cards_written", written),
	)
	return summary, nil
}
