package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one raw admissions result extracted from a listing row. Every
// field is the unprocessed source text; coercion into typed values is the
// normalizer's job.
type Entry struct {
	Program    string
	University string
	DateAdded  string
	URL        string

	Status     string
	AcceptDate string
	RejectDate string

	StartTerm   string
	StartYear   string
	Citizenship string

	GPA           string
	GRETotal      string
	GREVerbal     string
	GREAnalytical string

	Degree   string
	Comments string
}

var (
	degreeRe = regexp.MustCompile(`(?i)\b(Masters|Master's|MS|PhD|MFA|MBA|JD|EdD|PsyD|Other)\b`)

	// Decision badge with an optional "on <date>" tail. The tail may pick up
	// trailing UI chatter; uiTailRe trims it afterwards since RE2 has no
	// lookahead.
	decisionRe = regexp.MustCompile(`(?i)\b(Accepted|Rejected|Interview|Wait\s?listed)\b(?:\s+on\s+([0-9A-Za-z, ]{1,40}))?`)
	uiTailRe   = regexp.MustCompile(`(?i)\b(?:Total comments|Open options|See More|Report)\b.*$`)

	termYearRe = regexp.MustCompile(`(?i)\b(Fall|Spring|Summer)\s+(\d{4})\b`)
	gpaRe      = regexp.MustCompile(`(?i)\bGPA[^0-9]*([0-9]+(?:[.,][0-9]+)?)`)
	greVRe     = regexp.MustCompile(`(?i)\bGRE\s*V[:\s]+(\d{2,3})\b`)
	greAWRe    = regexp.MustCompile(`(?i)\bGRE\s*AWA?[:\s]*([0-9]+(?:\.[0-9]+)?)`)
	// Plain "GRE <score>"; "GRE V"/"GRE AW" never match because the digit
	// group cannot start with a letter.
	greTotalRe = regexp.MustCompile(`(?i)\bGRE[:\s]+(\d{2,3})\b`)

	seeMoreRe  = regexp.MustCompile(`(?i)^\s*See More\s*$`)
	entryRefRe = regexp.MustCompile(`/(survey|result)/`)
)

var degreeCanon = map[string]string{
	"masters": "Masters", "master's": "Masters", "ms": "Masters",
	"phd": "PhD", "mfa": "MFA", "mba": "MBA",
	"jd": "JD", "edd": "EdD", "psyd": "PsyD", "other": "Other",
}

// Parser extracts raw entries from listing page HTML.
type Parser struct {
	base *url.URL
}

// NewParser builds a Parser resolving relative entry links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Parser{base: base}, nil
}

// Parse maps one page payload to zero or more raw entries. A page without a
// listings table yields no entries and no error.
func (p *Parser) Parse(page Page) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page.Number, err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var entries []Entry
	table.Find("tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.ChildrenFiltered("td")
		if tds.Length() < 4 {
			// Expansion rows carry a single colspan cell; they are folded
			// into their parent row below.
			return
		}
		entries = append(entries, p.parseRow(tr, tds, page.URL))
	})
	return entries, nil
}

func (p *Parser) parseRow(tr *goquery.Selection, tds *goquery.Selection, pageURL string) Entry {
	entry := Entry{
		University: squashText(tds.Eq(0).Text()),
		DateAdded:  squashText(tds.Eq(2).Text()),
	}

	// Program cell also carries the degree, separated by a middle dot.
	programCell := squashText(strings.ReplaceAll(tds.Eq(1).Text(), "·", " "))
	if loc := degreeRe.FindStringSubmatchIndex(programCell); loc != nil {
		token := strings.ToLower(strings.NewReplacer(".", "", "’", "'").Replace(programCell[loc[2]:loc[3]]))
		entry.Degree = degreeCanon[token]
		entry.Program = strings.Trim(programCell[:loc[0]], " .·-")
	} else {
		entry.Program = programCell
	}

	// Badge values (decision, term, scores) float around the row and its
	// expansion row; regex over the flattened text finds them wherever the
	// markup put them.
	fullText := squashText(tr.Text())
	if next := tr.Next(); next.Length() > 0 && next.Find("td[colspan]").Length() > 0 {
		fullText += " " + squashText(next.Text())
	}
	lower := strings.ToLower(fullText)

	if m := decisionRe.FindStringSubmatch(fullText); m != nil {
		token := strings.ToLower(strings.ReplaceAll(m[1], " ", ""))
		when := strings.TrimSpace(uiTailRe.ReplaceAllString(m[2], ""))
		switch {
		case strings.Contains(token, "wait"):
			entry.Status = "Waitlisted"
		case token == "accepted":
			entry.Status = "Accepted"
			entry.AcceptDate = when
		case token == "rejected":
			entry.Status = "Rejected"
			entry.RejectDate = when
		case token == "interview":
			entry.Status = "Interview"
		}
	}

	if m := termYearRe.FindStringSubmatch(fullText); m != nil {
		entry.StartTerm = titleCase(m[1])
		entry.StartYear = m[2]
	}

	if strings.Contains(lower, "international") {
		entry.Citizenship = "International"
	} else if strings.Contains(lower, "american") {
		entry.Citizenship = "American"
	}

	if m := gpaRe.FindStringSubmatch(fullText); m != nil {
		entry.GPA = strings.ReplaceAll(m[1], ",", ".")
	}
	if m := greVRe.FindStringSubmatch(fullText); m != nil {
		entry.GREVerbal = m[1]
	}
	if m := greAWRe.FindStringSubmatch(fullText); m != nil {
		entry.GREAnalytical = m[1]
	}
	if m := greTotalRe.FindStringSubmatch(fullText); m != nil {
		entry.GRETotal = m[1]
	}

	entry.URL = p.entryURL(tr, pageURL)
	return entry
}

// entryURL prefers the row's "See More" link, falls back to any survey or
// result href, and finally to the page URL itself.
func (p *Parser) entryURL(tr *goquery.Selection, pageURL string) string {
	var href string
	tr.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if seeMoreRe.MatchString(a.Text()) {
			href, _ = a.Attr("href")
			return false
		}
		return true
	})
	if href == "" {
		tr.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h, _ := a.Attr("href")
			if entryRefRe.MatchString(h) {
				href = h
				return false
			}
			return true
		})
	}
	if href == "" {
		return pageURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	return p.base.ResolveReference(ref).String()
}

// squashText collapses runs of whitespace into single spaces and trims.
func squashText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
