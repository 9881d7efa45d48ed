// Package feed fetches and parses blog feeds into candidate posts. Fetches use
// conditional GET so unchanged feeds are never re-downloaded, and every summary
// is sanitized before it leaves this package.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// MalformedEntryError reports a single feed entry missing required fields or a
// usable publication date. The entry is skipped; the rest of the feed is not
// affected.
type MalformedEntryError struct {
	Reason string
	Title  string
}

func (e *MalformedEntryError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("malformed feed entry: %s", e.Reason)
	}
	return fmt.Sprintf("malformed feed entry %q: %s", e.Title, e.Reason)
}

// Candidate is a feed entry parsed into a storable post. Summary is already
// sanitized HTML.
type Candidate struct {
	Timestamp time.Time
	Title     string
	Summary   string
	PageURL   string
}

// Result holds the outcome of a single feed fetch. Candidates are sorted newest
// first, feeds do not guarantee delivery order. Etag and Modified carry the
// caching hints to store for the next fetch; on a 304 response NotModified is
// set and the hints passed in are returned unchanged.
type Result struct {
	Candidates  []Candidate
	NotModified bool
	Etag        string
	Modified    string
	Skipped     int // entries dropped as malformed
}

// Parser fetches and parses RSS/Atom feeds
type Parser struct {
	client    *http.Client
	policy    *bluemonday.Policy
	userAgent string
}

// NewParser creates a feed parser with the given per-request timeout
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy:    bluemonday.UGCPolicy(),
		userAgent: userAgent,
	}
}

// Fetch retrieves the feed at feedURL with etag/modified as conditional-GET
// hints and parses it into candidates. A 304 response is a success with zero
// candidates. Malformed entries are logged, counted and skipped.
func (p *Parser) Fetch(ctx context.Context, feedURL, etag, modified string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if modified != "" {
		req.Header.Set("If-Modified-Since", modified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true, Etag: etag, Modified: modified}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	// keep old hints when the server sends none
	res := &Result{Etag: etag, Modified: modified}
	if v := resp.Header.Get("ETag"); v != "" {
		res.Etag = v
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		res.Modified = v
	}

	for _, item := range parsed.Items {
		cand, err := p.candidate(item)
		if err != nil {
			lgr.Printf("[WARN] skipping entry in %s: %v", feedURL, err)
			res.Skipped++
			continue
		}
		res.Candidates = append(res.Candidates, cand)
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Timestamp.After(res.Candidates[j].Timestamp)
	})

	return res, nil
}

// candidate converts a single feed entry, validating required fields and
// sanitizing the summary. The sanitizer runs on every entry regardless of the
// declared MIME type: stray markup in plain-text summaries gets escaped, HTML
// summaries get scrubbed, either way the stored value is safe to render
// verbatim.
func (p *Parser) candidate(item *gofeed.Item) (Candidate, error) {
	if item.Title == "" {
		return Candidate{}, &MalformedEntryError{Reason: "no title"}
	}
	if item.Link == "" {
		return Candidate{}, &MalformedEntryError{Reason: "no link", Title: item.Title}
	}
	if item.Description == "" {
		return Candidate{}, &MalformedEntryError{Reason: "no summary", Title: item.Title}
	}

	var ts time.Time
	switch {
	case item.PublishedParsed != nil:
		ts = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		ts = *item.UpdatedParsed
	default:
		return Candidate{}, &MalformedEntryError{Reason: "no usable publication date", Title: item.Title}
	}

	return Candidate{
		Timestamp: ts.UTC(),
		Title:     item.Title,
		Summary:   p.policy.Sanitize(item.Description),
		PageURL:   item.Link,
	}, nil
}
