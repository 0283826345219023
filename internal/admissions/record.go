// Package admissions defines the domain types shared by the ingestion
// pipeline and the relational store.
package admissions

import (
	"strconv"
	"strings"
	"time"
)

// Status is the closed decision enumeration. Source text that does not map
// onto it is kept verbatim in Record.StatusRaw with Status set to StatusOther.
type Status string

// Allowed decision statuses.
const (
	StatusAccepted   Status = "Accepted"
	StatusRejected   Status = "Rejected"
	StatusWaitlisted Status = "Waitlisted"
	StatusInterview  Status = "Interview"
	StatusOther      Status = "Other"
)

// ParseStatus maps free-text decision badges onto the closed enumeration.
// Matching is case-insensitive; any text containing "wait" counts as
// wait-listed. Unmatched text yields StatusOther.
func ParseStatus(raw string) Status {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	switch {
	case s == "":
		return StatusOther
	case strings.Contains(s, "wait"):
		return StatusWaitlisted
	case strings.HasPrefix(s, "accept"):
		return StatusAccepted
	case strings.HasPrefix(s, "reject"):
		return StatusRejected
	case strings.HasPrefix(s, "interview"):
		return StatusInterview
	default:
		return StatusOther
	}
}

// Record is a parsed-but-not-yet-stored admissions result. URL is the
// natural deduplication key and must be non-empty before the record reaches
// the loader. Pointer fields are nil when the source value was absent or
// outside its plausible bound; zero time values mean "no date".
type Record struct {
	Program    string
	University string
	DateAdded  time.Time
	URL        string

	Status    Status
	StatusRaw string

	StartTerm   string // Fall, Spring or Summer
	StartYear   int    // 0 when unknown
	Citizenship string // International or American

	GPA           *float64 // valid range 0.0-4.0 inclusive
	GRETotal      *float64 // valid range 260-340
	GREVerbal     *float64 // valid range 130-170
	GREAnalytical *float64 // valid range 0.0-6.0

	Degree   string
	Comments string

	AcceptDate time.Time
	RejectDate time.Time

	// Canonical labels produced by the standardizer. When non-empty they are
	// adopted as the display Program/University and also persisted in their
	// own columns for auditability.
	CanonProgram    string
	CanonUniversity string
}

// Term renders the "Fall 2025" style term label, or "" when unknown.
func (r Record) Term() string {
	if r.StartTerm == "" || r.StartYear == 0 {
		return ""
	}
	return r.StartTerm + " " + strconv.Itoa(r.StartYear)
}

// AdoptCanonical overwrites the display program/university with non-empty
// canonical values and records them on the canon fields. Empty canonical
// values leave the originals untouched. It reports whether anything changed.
func (r *Record) AdoptCanonical(program, university string) bool {
	changed := false
	if p := strings.TrimSpace(program); p != "" {
		r.CanonProgram = p
		if r.Program != p {
			r.Program = p
			changed = true
		}
	}
	if u := strings.TrimSpace(university); u != "" {
		r.CanonUniversity = u
		if r.University != u {
			r.University = u
			changed = true
		}
	}
	return changed
}
