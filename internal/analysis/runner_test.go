package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestRunAllClassifiesScalarAndTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(212)))
	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("Accepted", int64(120)).
			AddRow("Rejected", int64(92)))

	runner := NewRunner(mock, nil)
	runner.now = func() time.Time {
		return time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	}

	defs := []Definition{
		{ID: "fall_count", Label: "Applicants for Fall 2025", Shape: ShapeScalar, SQL: "SELECT COUNT(*) FROM applicants"},
		{ID: "by_status", Label: "Applicants by status", Shape: ShapeTable, SQL: "SELECT status, COUNT(*) FROM applicants GROUP BY status"},
	}

	results, err := runner.RunAll(context.Background(), defs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, QueryOK, results[0].Status)
	require.Equal(t, ShapeScalar, results[0].Shape)
	require.Equal(t, "212", results[0].Value)

	require.Equal(t, QueryOK, results[1].Status)
	require.Equal(t, ShapeTable, results[1].Shape)
	require.Equal(t, []string{"status", "count"}, results[1].Columns)
	require.Equal(t, [][]string{{"Accepted", "120"}, {"Rejected", "92"}}, results[1].Rows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllAbsorbsPerQueryFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("relation does not exist")
	mock.ExpectQuery("SELECT bad").WillReturnError(boom)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	runner := NewRunner(mock, nil)
	defs := []Definition{
		{ID: "broken", Label: "Broken query", Shape: ShapeScalar, SQL: "SELECT bad FROM nowhere"},
		{ID: "counts", Label: "Counts", Shape: ShapeScalar, SQL: "SELECT COUNT(*) FROM applicants"},
	}

	results, err := runner.RunAll(context.Background(), defs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, QueryFailed, results[0].Status)
	require.ErrorIs(t, results[0].Err, boom)
	require.Equal(t, QueryOK, results[1].Status)
	require.Equal(t, "7", results[1].Value)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(mock, nil)
	results, err := runner.RunAll(ctx, []Definition{
		{ID: "q", Label: "q", Shape: ShapeScalar, SQL: "SELECT 1"},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, results)
}

func TestRenderValueCoversDriverTypes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", renderValue(nil))
	require.Equal(t, "3.75", renderValue(3.75))
	require.Equal(t, "42", renderValue(int64(42)))
	require.Equal(t, "true", renderValue(true))
	require.Equal(t, "hello", renderValue([]byte("hello")))
	require.Equal(t, "2025-08-28", renderValue(time.Date(2025, time.August, 28, 10, 0, 0, 0, time.UTC)))
}
