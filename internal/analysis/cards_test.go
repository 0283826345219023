package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var cardTime = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestWriteScalarCard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewCardWriter(dir)
	require.NoError(t, err)

	n, err := w.Write([]Result{{
		ID:     "pct_international",
		Label:  "Percent international applicants",
		Shape:  ShapeScalar,
		Status: QueryOK,
		Value:  "57.14%",
		RanAt:  cardTime,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	raw, err := os.ReadFile(filepath.Join(dir, "pct_international.json"))
	require.NoError(t, err)
	require.JSONEq(t,
		`{"query":"Percent international applicants","shape":"scalar","answer":"57.14%","generated_at":"2026-01-15T12:00:00Z"}`,
		string(raw))
}

func TestWriteTableCardPreservesColumnOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewCardWriter(dir)
	require.NoError(t, err)

	n, err := w.Write([]Result{{
		ID:      "by_status",
		Label:   "Applicants by status",
		Shape:   ShapeTable,
		Status:  QueryOK,
		Columns: []string{"status", "count"},
		Rows:    [][]string{{"Accepted", "120"}, {"Rejected", "92"}},
		RanAt:   cardTime,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	raw, err := os.ReadFile(filepath.Join(dir, "by_status.json"))
	require.NoError(t, err)
	// Column order in each row object must match the result set, not
	// alphabetical key order.
	require.Contains(t, string(raw), `{"status":"Accepted","count":"120"}`)
	require.Contains(t, string(raw), `{"status":"Rejected","count":"92"}`)
}

func TestWriteSkipsFailedQueriesAndKeepsOldCard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewCardWriter(dir)
	require.NoError(t, err)

	ok := Result{ID: "counts", Label: "Counts", Shape: ShapeScalar, Status: QueryOK, Value: "7", RanAt: cardTime}
	n, err := w.Write([]Result{ok})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	before, err := os.ReadFile(filepath.Join(dir, "counts.json"))
	require.NoError(t, err)

	failed := Result{ID: "counts", Label: "Counts", Shape: ShapeScalar, Status: QueryFailed, RanAt: cardTime}
	n, err = w.Write([]Result{failed})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	after, err := os.ReadFile(filepath.Join(dir, "counts.json"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestWriteReplacesExistingCard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewCardWriter(dir)
	require.NoError(t, err)

	first := Result{ID: "counts", Label: "Counts", Shape: ShapeScalar, Status: QueryOK, Value: "7", RanAt: cardTime}
	_, err = w.Write([]Result{first})
	require.NoError(t, err)

	second := first
	second.Value = "11"
	_, err = w.Write([]Result{second})
	require.NoError(t, err)

	cards, err := w.Load()
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, `"11"`, string(cards[0].Answer))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRawIndexesCardsByQueryID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewCardWriter(dir)
	require.NoError(t, err)

	_, err = w.Write([]Result{
		{ID: "a_first", Label: "First", Shape: ShapeScalar, Status: QueryOK, Value: "1", RanAt: cardTime},
		{ID: "b_second", Label: "Second", Shape: ShapeScalar, Status: QueryOK, Value: "2", RanAt: cardTime},
	})
	require.NoError(t, err)

	raw, err := w.Raw()
	require.NoError(t, err)
	require.JSONEq(t,
		`{"cards":{
		   "a_first":{"query":"First","shape":"scalar","answer":"1","generated_at":"2026-01-15T12:00:00Z"},
		   "b_second":{"query":"Second","shape":"scalar","answer":"2","generated_at":"2026-01-15T12:00:00Z"}}}`,
		string(raw))
}
