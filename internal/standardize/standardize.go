// Package standardize maps free-text program and university strings to
// canonical labels through a local text-classification service. The step is
// pluggable: a Noop implementation backs the disabled configuration switch
// so the pipeline never branches on it.
package standardize

import "context"

// Canonical holds the canonical labels for one record. Empty fields mean
// the classifier had no confident answer and the original text stands.
type Canonical struct {
	Program    string `json:"program_canon"`
	University string `json:"university_canon"`
}

// Standardizer produces canonical labels for a single record's program and
// university text. Implementations must be safe for sequential reuse across
// a batch; a per-record failure is reported as an error and must not poison
// subsequent calls.
type Standardizer interface {
	Canonize(ctx context.Context, program, university string) (Canonical, error)
}

// Noop is the disabled standardizer: it returns empty canonical labels so
// records pass through unchanged.
type Noop struct{}

// Canonize implements Standardizer.
func (Noop) Canonize(context.Context, string, string) (Canonical, error) {
	return Canonical{}, nil
}
