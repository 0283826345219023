// Package normalize coerces raw scraped entries into validated candidate
// records. Every field is coerced independently: a value outside its
// plausible bound is discarded to empty, never clamped or guessed, and a
// record is only dropped when a required field is missing.
package normalize

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/admissions"
	"github.com/admitlab/admitpipe/internal/logging"
	"github.com/admitlab/admitpipe/internal/scrape"
)

// Plausible value bounds. Values outside are discarded to empty.
const (
	GPAMin = 0.0
	GPAMax = 4.0

	GRETotalMin = 260
	GRETotalMax = 340

	GREVerbalMin = 130
	GREVerbalMax = 170

	GREAnalyticalMin = 0.0
	GREAnalyticalMax = 6.0

	YearMin = 1950
	YearMax = 2035
)

// DropReason records why a single raw entry was rejected.
type DropReason struct {
	Index  int
	URL    string
	Reason string
}

// Result reports the outcome of normalizing one batch: the pipeline must
// always be able to say how many rows were attempted vs accepted.
type Result struct {
	Records   []admissions.Record
	Dropped   []DropReason
	Attempted int
	Accepted  int
}

// Config tunes normalization behavior.
type Config struct {
	// DedupeByURL drops in-batch duplicates (later occurrences) before the
	// loader sees them. The loader's own conflict handling still covers
	// cross-run duplicates.
	DedupeByURL bool
}

// Normalizer converts raw entries to candidate records.
type Normalizer struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Normalizer.
func New(cfg Config, logger *zap.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, logger: logging.NopIfNil(logger)}
}

// Normalize coerces and validates a batch of raw entries.
func (n *Normalizer) Normalize(entries []scrape.Entry) Result {
	res := Result{Attempted: len(entries)}
	seen := make(map[string]struct{}, len(entries))

	for i, e := range entries {
		rec, reason := n.normalizeOne(e)
		if reason != "" {
			res.Dropped = append(res.Dropped, DropReason{Index: i, URL: rec.URL, Reason: reason})
			continue
		}
		if n.cfg.DedupeByURL {
			if _, dup := seen[rec.URL]; dup {
				res.Dropped = append(res.Dropped, DropReason{Index: i, URL: rec.URL, Reason: "duplicate url in batch"})
				continue
			}
			seen[rec.URL] = struct{}{}
		}
		res.Records = append(res.Records, rec)
	}

	res.Accepted = len(res.Records)
	n.logger.Info("normalized batch",
		zap.Int("attempted", res.Attempted),
		zap.Int("accepted", res.Accepted),
		zap.Int("dropped", len(res.Dropped)),
	)
	return res
}

// normalizeOne coerces a single entry. A non-empty reason means the record
// failed validation and must be dropped.
func (n *Normalizer) normalizeOne(e scrape.Entry) (admissions.Record, string) {
	rec := admissions.Record{
		Program:     cleanString(e.Program),
		University:  cleanString(e.University),
		URL:         cleanString(e.URL),
		StatusRaw:   cleanString(e.Status),
		Citizenship: parseCitizenship(e.Citizenship),
		Degree:      parseDegree(e.Degree),
		Comments:    cleanString(e.Comments),
	}
	rec.Status = admissions.ParseStatus(rec.StatusRaw)
	rec.DateAdded = parseDate(e.DateAdded)

	rec.StartTerm = parseTerm(e.StartTerm)
	if year, ok := parseIntBounded(e.StartYear, YearMin, YearMax); ok {
		rec.StartYear = year
	}

	rec.GPA = parseFloatBounded(e.GPA, GPAMin, GPAMax)
	rec.GRETotal = parseFloatBounded(e.GRETotal, GRETotalMin, GRETotalMax)
	rec.GREVerbal = parseFloatBounded(e.GREVerbal, GREVerbalMin, GREVerbalMax)
	rec.GREAnalytical = parseFloatBounded(e.GREAnalytical, GREAnalyticalMin, GREAnalyticalMax)

	defaultYear := 0
	if !rec.DateAdded.IsZero() {
		defaultYear = rec.DateAdded.Year()
	}
	rec.AcceptDate = parseBadgeDate(e.AcceptDate, defaultYear)
	rec.RejectDate = parseBadgeDate(e.RejectDate, defaultYear)

	switch {
	case rec.URL == "":
		return rec, "missing url"
	case rec.Program == "":
		return rec, "missing program"
	case rec.University == "":
		return rec, "missing university"
	case rec.DateAdded.IsZero():
		return rec, "missing or unparsable date_added"
	case rec.StatusRaw == "":
		return rec, "missing status"
	}
	return rec, ""
}

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	badgeTailRe  = regexp.MustCompile(`(?i)\b(?:Total comments|Open options|See More|Report)\b.*$`)
	dayMonthRe   = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,})\s*$`)
	monthDayRe   = regexp.MustCompile(`(?i)^\s*([A-Za-z]{3,})\s+(\d{1,2})(?:st|nd|rd|th)?\s*$`)
	fullLayouts  = []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006"}
	shortLayouts = []string{"2 Jan 2006", "2 January 2006"}
)

// cleanString strips markup remnants, unescapes entities and collapses
// whitespace.
func cleanString(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// parseDate parses the listing's full date formats. Unparsable text yields
// the zero time; the raw value is not retained.
func parseDate(s string) time.Time {
	s = cleanString(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range fullLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseBadgeDate parses decision-badge dates, which may be full dates or
// short day-month forms without a year (e.g. "28 Aug" or "Aug 28"). Short
// forms borrow defaultYear, usually the entry's date_added year.
func parseBadgeDate(s string, defaultYear int) time.Time {
	s = cleanString(s)
	if s == "" {
		return time.Time{}
	}
	// Trim UI tails that may have leaked into the badge capture.
	s = strings.TrimSpace(badgeTailRe.ReplaceAllString(s, ""))
	if s == "" {
		return time.Time{}
	}

	for _, layout := range fullLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if defaultYear == 0 {
		return time.Time{}
	}

	var day, month string
	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		day, month = m[1], m[2]
	} else if m := monthDayRe.FindStringSubmatch(s); m != nil {
		month, day = m[1], m[2]
	} else {
		return time.Time{}
	}
	candidate := fmt.Sprintf("%s %s %d", day, month, defaultYear)
	for _, layout := range shortLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseFloatBounded returns the parsed value only when it lies within
// [min, max]; anything else, including unparsable text, is discarded to nil.
func parseFloatBounded(s string, min, max float64) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < min || v > max {
		return nil
	}
	return &v
}

func parseIntBounded(s string, min, max int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < min || v > max {
		return 0, false
	}
	return v, true
}

func parseTerm(s string) string {
	switch strings.ToLower(cleanString(s)) {
	case "fall", "autumn":
		return "Fall"
	case "spring", "winter":
		return "Spring"
	case "summer":
		return "Summer"
	default:
		return ""
	}
}

func parseCitizenship(s string) string {
	c := strings.ToLower(cleanString(s))
	switch {
	case strings.HasPrefix(c, "inter"):
		return "International"
	case strings.HasPrefix(c, "amer"):
		return "American"
	default:
		return ""
	}
}

var degreeCanon = map[string]string{
	"masters": "Masters", "master's": "Masters", "ms": "Masters",
	"phd": "PhD", "mfa": "MFA", "mba": "MBA",
	"jd": "JD", "edd": "EdD", "psyd": "PsyD", "other": "Other",
}

func parseDegree(s string) string {
	key := strings.ToLower(cleanString(s))
	key = strings.NewReplacer(".", "", "’", "'").Replace(key)
	return degreeCanon[key]
}
