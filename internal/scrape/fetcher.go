// Package scrape retrieves paginated admissions listing pages and extracts
// raw result entries from their HTML.
package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/logging"
)

// Page is one raw listing page payload.
type Page struct {
	Number int
	URL    string
	Body   []byte
}

// PageError reports a failed fetch for a single page. It is recoverable:
// the fetch loop continues with the next page.
type PageError struct {
	Number int
	URL    string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %v", e.Number, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// FetcherConfig controls fetch behavior.
type FetcherConfig struct {
	UserAgent string
	// Delay is the minimum pause between consecutive page requests. It is a
	// politeness throttle, not a rate limiter: a slow server response simply
	// pushes the next request out further.
	Delay   time.Duration
	Timeout time.Duration
}

// VisitFunc receives each page in page order. err is non-nil (a *PageError)
// when the page could not be fetched, in which case page.Body is nil.
// Returning a non-nil error stops the iteration.
type VisitFunc func(page Page, err error) error

// Fetcher retrieves listing pages sequentially with at most one in-flight
// request.
type Fetcher struct {
	cfg    FetcherConfig
	base   *colly.Collector
	logger *zap.Logger
}

// NewFetcher builds a Fetcher around a base colly collector. The collector
// is cloned per request so page fetches never share visit state.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:    cfg,
		base:   c,
		logger: logging.NopIfNil(logger),
	}
}

// Pages fetches pages [start, start+count) built from baseURL, in page
// order, invoking visit for every page. Failures are surfaced per page
// through visit; only context cancellation or a visit error aborts the loop.
func (f *Fetcher) Pages(ctx context.Context, baseURL string, start, count int, visit VisitFunc) error {
	for i := 0; i < count; i++ {
		if i > 0 && f.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.cfg.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		number := start + i
		pageURL := buildPageURL(baseURL, number)
		page := Page{Number: number, URL: pageURL}

		body, err := f.fetch(pageURL)
		if err != nil {
			f.logger.Warn("page fetch failed",
				zap.Int("page", number),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			if vErr := visit(page, &PageError{Number: number, URL: pageURL, Err: err}); vErr != nil {
				return vErr
			}
			continue
		}

		page.Body = body
		f.logger.Debug("page fetched",
			zap.Int("page", number),
			zap.Int("bytes", len(body)),
		)
		if vErr := visit(page, nil); vErr != nil {
			return vErr
		}
	}
	return nil
}

// fetch executes a single HTTP GET through a cloned collector.
func (f *Fetcher) fetch(pageURL string) ([]byte, error) {
	c := f.base.Clone()

	var (
		body     []byte
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, err
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if body == nil {
		return nil, fmt.Errorf("empty response")
	}
	return body, nil
}

var pageParamRe = regexp.MustCompile(`([?&]page=)\d+`)

// buildPageURL replaces an existing ?page= parameter or appends one.
func buildPageURL(base string, page int) string {
	n := strconv.Itoa(page)
	if updated := pageParamRe.ReplaceAllString(base, "${1}"+n); updated != base {
		return updated
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "page=" + n
}
