package analysis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/logging"
)

// DB is the read surface the runner needs from the applicant store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryStatus reports how a single saved query fared.
type QueryStatus string

const (
	QueryOK     QueryStatus = "ok"
	QueryFailed QueryStatus = "failed"
)

// Result is the materialized answer for one saved query. For a scalar
// query Value holds the rendered answer; for a table query Columns and
// Rows carry the full result set in column order.
type Result struct {
	ID      string
	Label   string
	Shape   Shape
	Status  QueryStatus
	Value   string
	Columns []string
	Rows    [][]string
	Err     error
	RanAt   time.Time
}

// Runner executes the saved query battery.
type Runner struct {
	db     DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner builds a runner over the given read surface.
func NewRunner(db DB, logger *zap.Logger) *Runner {
	return &Runner{
		db:     db,
		logger: logging.NopIfNil(logger),
		now:    time.Now,
	}
}

// RunAll executes every definition in order. A failing query is recorded
// in its Result and does not stop the rest of the battery; RunAll only
// returns an error when the context is cancelled.
func (r *Runner) RunAll(ctx context.Context, defs []Definition) ([]Result, error) {
	results := make([]Result, 0, len(defs))
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.runOne(ctx, def)
		if res.Status == QueryFailed {
			r.logger.Warn("query failed",
				zap.String("query", def.ID),
				zap.Error(res.Err),
			)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, def Definition) Result {
	res := Result{ID: def.ID, Label: def.Label, Shape: def.Shape, RanAt: r.now().UTC()}

	rows, err := r.db.Query(ctx, def.SQL)
	if err != nil {
		res.Status = QueryFailed
		res.Err = fmt.Errorf("run %s: %w", def.ID, err)
		return res
	}
	defer rows.Close()

	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			res.Status = QueryFailed
			res.Err = fmt.Errorf("scan %s: %w", def.ID, err)
			return res
		}
		rendered := make([]string, len(vals))
		for i, v := range vals {
			rendered[i] = renderValue(v)
		}
		res.Rows = append(res.Rows, rendered)
	}
	if err := rows.Err(); err != nil {
		res.Status = QueryFailed
		res.Err = fmt.Errorf("read %s: %w", def.ID, err)
		return res
	}

	// A result of exactly one row and one column is a scalar regardless
	// of the declared shape; the declaration is a sanity check.
	if len(res.Rows) == 1 && len(res.Columns) == 1 {
		res.Shape = ShapeScalar
		res.Value = res.Rows[0][0]
	} else {
		res.Shape = ShapeTable
	}
	if res.Shape != def.Shape {
		r.logger.Warn("query shape differs from declaration",
			zap.String("query", def.ID),
			zap.String("declared", string(def.Shape)),
			zap.String("actual", string(res.Shape)),
		)
	}

	res.Status = QueryOK
	return res
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02")
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
