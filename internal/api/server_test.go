package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/admitlab/admitpipe/internal/pipeline"
	"github.com/admitlab/admitpipe/internal/runguard"
	"github.com/admitlab/admitpipe/internal/store"
)

type fakePipeline struct {
	ingestSummary  pipeline.IngestSummary
	ingestOutcome  pipeline.Outcome
	ingestErr      error
	analyzeSummary pipeline.AnalysisSummary
	analyzeOutcome pipeline.Outcome
	analyzeErr     error
}

func (f *fakePipeline) RunIngestion(context.Context) (pipeline.IngestSummary, pipeline.Outcome, error) {
	return f.ingestSummary, f.ingestOutcome, f.ingestErr
}

func (f *fakePipeline) RunAnalysis(context.Context) (pipeline.AnalysisSummary, pipeline.Outcome, error) {
	return f.analyzeSummary, f.analyzeOutcome, f.analyzeErr
}

func (f *fakePipeline) Busy() bool { return false }

type fakeCards struct {
	raw []byte
	err error
}

func (f *fakeCards) Raw() ([]byte, error) { return f.raw, f.err }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(p Pipeline, cards CardSource, db Pinger) *httptest.Server {
	return httptest.NewServer(NewServer(p, cards, db, nil).Handler())
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestPullDataCompleted(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{
		ingestSummary: pipeline.IngestSummary{
			Pages:  2,
			Parsed: 40,
			Load:   store.LoadStats{Attempted: 40, Inserted: 35, Skipped: 5},
		},
		ingestOutcome: pipeline.OutcomeCompleted,
	}
	srv := newTestServer(p, &fakeCards{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/pull-data", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body pullDataResponse
	require.NoError(t, jsonDecode(resp, &body))
	require.Equal(t, "completed", body.Outcome)
	require.Equal(t, 35, body.Summary.Load.Inserted)
	require.Equal(t, 5, body.Summary.Load.Skipped)
}

func TestPullDataConflict(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{ingestOutcome: pipeline.OutcomeConflict, ingestErr: runguard.ErrBusy}
	srv := newTestServer(p, &fakeCards{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/pull-data", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, jsonDecode(resp, &body))
	require.Equal(t, "conflict", body["outcome"])
}

func TestUpdateAnalysisFailed(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{
		analyzeOutcome: pipeline.OutcomeFailed,
		analyzeErr:     errors.New("store unreachable"),
	}
	srv := newTestServer(p, &fakeCards{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/update-analysis", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAnalysisCardsServesCardIndex(t *testing.T) {
	t.Parallel()

	cards := &fakeCards{raw: []byte(`{"cards":{"counts":{"query":"Counts","shape":"scalar","answer":"7"}}}`)}
	srv := newTestServer(&fakePipeline{}, cards, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/analysis/cards")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestReadyzReflectsStoreHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakePipeline{}, &fakeCards{}, &fakePinger{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(&fakePipeline{}, &fakeCards{}, &fakePinger{err: errors.New("refused")})
	defer down.Close()

	resp, err = http.Get(down.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakePipeline{}, &fakeCards{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
