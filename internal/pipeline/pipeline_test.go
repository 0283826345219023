package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/admitlab/admitpipe/internal/admissions"
	"github.com/admitlab/admitpipe/internal/analysis"
	"github.com/admitlab/admitpipe/internal/normalize"
	"github.com/admitlab/admitpipe/internal/runguard"
	"github.com/admitlab/admitpipe/internal/scrape"
	"github.com/admitlab/admitpipe/internal/standardize"
	"github.com/admitlab/admitpipe/internal/store"
)

const listingPage = `<html><body><table><tbody>
<tr>
  <td>Johns Hopkins University</td>
  <td>Computer Science · Masters</td>
  <td>2025-08-28</td>
  <td><span>Accepted on 28 Aug</span> <a href="/result/%d">See More</a></td>
</tr>
<tr>
  <td>Georgetown University</td>
  <td>International Relations · PhD</td>
  <td>February 2, 2025</td>
  <td><span>Rejected on Feb 2</span> <a href="/result/%d">See More</a></td>
</tr>
</tbody></table></body></html>`

type fakeLoader struct {
	batches [][]admissions.Record
	stats   store.LoadStats
	err     error
	block   chan struct{}
}

func (f *fakeLoader) LoadBatch(ctx context.Context, records []admissions.Record) (store.LoadStats, error) {
	if f.block != nil {
		<-f.block
	}
	f.batches = append(f.batches, records)
	if f.err != nil {
		return store.LoadStats{}, f.err
	}
	stats := f.stats
	stats.Attempted = len(records)
	return stats, nil
}

func newIngestService(t *testing.T, srvURL string, loader Loader) *Service {
	t.Helper()
	parser, err := scrape.NewParser(srvURL)
	require.NoError(t, err)
	return NewService(Params{
		Fetcher:      scrape.NewFetcher(scrape.FetcherConfig{Timeout: 5 * time.Second}, nil),
		Parser:       parser,
		Normalizer:   normalize.New(normalize.Config{DedupeByURL: true}, nil),
		Standardizer: standardize.Noop{},
		Loader:       loader,
		BaseURL:      srvURL,
		StartPage:    1,
		PageCount:    2,
	})
}

func TestRunIngestionCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "2" {
			fmt.Fprintf(w, listingPage, 201, 202)
			return
		}
		fmt.Fprintf(w, listingPage, 101, 102)
	}))
	defer srv.Close()

	loader := &fakeLoader{stats: store.LoadStats{Inserted: 3, Skipped: 1}}
	svc := newIngestService(t, srv.URL, loader)

	summary, outcome, err := svc.RunIngestion(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, 2, summary.Pages)
	require.Zero(t, summary.PageErrors)
	require.Equal(t, 4, summary.Parsed)
	require.Zero(t, summary.Dropped)
	require.Equal(t, 4, summary.Load.Attempted)
	require.Equal(t, 3, summary.Load.Inserted)
	require.Equal(t, 1, summary.Load.Skipped)

	require.Len(t, loader.batches, 1)
	require.Len(t, loader.batches[0], 4)
	first := loader.batches[0][0]
	require.Equal(t, "Johns Hopkins University", first.University)
	require.Equal(t, "Computer Science", first.Program)
	require.Equal(t, admissions.StatusAccepted, first.Status)
	require.False(t, svc.Busy())
}

func TestRunIngestionSkipsFailingPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "upstream sad", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, listingPage, 101, 102)
	}))
	defer srv.Close()

	loader := &fakeLoader{}
	svc := newIngestService(t, srv.URL, loader)

	summary, outcome, err := svc.RunIngestion(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 1, summary.PageErrors)
	require.Equal(t, 2, summary.Parsed)
}

func TestRunIngestionFailsWhenLoadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, listingPage, 101, 102)
	}))
	defer srv.Close()

	boom := errors.New("store down")
	loader := &fakeLoader{err: boom}
	svc := newIngestService(t, srv.URL, loader)

	_, outcome, err := svc.RunIngestion(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, OutcomeFailed, outcome)
	require.False(t, svc.Busy())
}

func TestConcurrentRunsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, listingPage, 101, 102)
	}))
	defer srv.Close()

	loader := &fakeLoader{block: make(chan struct{})}
	svc := newIngestService(t, srv.URL, loader)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.RunIngestion(context.Background())
		done <- err
	}()

	require.Eventually(t, svc.Busy, 5*time.Second, 10*time.Millisecond)

	_, outcome, err := svc.RunIngestion(context.Background())
	require.ErrorIs(t, err, runguard.ErrBusy)
	require.Equal(t, OutcomeConflict, outcome)

	close(loader.block)
	require.NoError(t, <-done)
	require.False(t, svc.Busy())
}

func TestRunAnalysisWritesCards(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Definitions run in id order, so by_status executes before fall_count.
	mock.ExpectQuery("SELECT status").
		WillReturnError(errors.New("bad column"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(212)))

	queriesDir := t.TempDir()
	writeQuery := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(queriesDir, name), []byte(body), 0o644))
	}
	writeQuery("q01.yaml", "id: fall_count\nlabel: Applicants for Fall 2025\nshape: scalar\nsql: SELECT COUNT(*) FROM applicants\n")
	writeQuery("q02.yaml", "id: by_status\nlabel: By status\nshape: table\nsql: SELECT status FROM applicants\n")

	defs, err := analysis.LoadDefinitions(queriesDir)
	require.NoError(t, err)

	cardsDir := t.TempDir()
	cards, err := analysis.NewCardWriter(cardsDir)
	require.NoError(t, err)

	svc := NewService(Params{
		Runner:      analysis.NewRunner(mock, nil),
		Cards:       cards,
		Definitions: defs,
	})

	summary, outcome, err := svc.RunAnalysis(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, 2, summary.Queries)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.CardsWritten)

	loaded, err := cards.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "Applicants for Fall 2025", loaded[0].Query)
	require.Equal(t, `"212"`, string(loaded[0].Answer))
	require.NoError(t, mock.ExpectationsWereMet())
}
