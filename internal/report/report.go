// Package report aggregates resolved links into a RunReport and renders it to
// the console and export files.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/site"
)

// Meta describes the run that produced a report.
type Meta struct {
	RunID     string        `json:"run_id"`
	BuildDir  string        `json:"build_dir"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	Seconds   float64       `json:"duration_seconds"`
}

// CacheStats summarizes the external check cache.
type CacheStats struct {
	URLs int
	Hits int64
}

// Totals counts pages and links by state.
type Totals struct {
	Pages         int   `json:"pages"`
	ParseFailures int   `json:"parse_failures"`
	Links         int   `json:"links"`
	Internal      int   `json:"internal"`
	External      int   `json:"external"`
	OK            int   `json:"ok"`
	Broken        int   `json:"broken"`
	BrokenAnchors int   `json:"broken_anchors"`
	Skipped       int   `json:"skipped"`
	NotChecked    int   `json:"not_checked"`
	ExternalURLs  int   `json:"external_urls"`
	CacheHits     int64 `json:"cache_hits"`
}

// Entry is one link as it appears in a report.
type Entry struct {
	Page     string       `json:"page"`
	Href     string       `json:"href"`
	Target   string       `json:"target,omitempty"`
	Kind     link.Kind    `json:"kind"`
	Outcome  link.Outcome `json:"outcome"`
	Status   int          `json:"status,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Attempts int          `json:"attempts,omitempty"`
}

// ParseFailure is a page whose HTML did not parse cleanly.
type ParseFailure struct {
	Page   string `json:"page"`
	Reason string `json:"reason"`
}

// RunReport is the full result of one run. Every list is ordered by page
// discovery and then by position within the page.
type RunReport struct {
	Meta          Meta           `json:"meta"`
	Summary       Totals         `json:"summary"`
	Broken        []Entry        `json:"broken"`
	NotChecked    []Entry        `json:"not_checked"`
	ParseFailures []ParseFailure `json:"parse_failures"`
	Links         []Entry        `json:"links"`
}

// Build collects pages and links into a report. Completion order of the
// checks does not matter; links are sorted here.
func Build(pages []*site.Page, links []*link.Link, meta Meta, cache CacheStats) *RunReport {
	meta.Seconds = meta.Duration.Seconds()
	r := &RunReport{
		Meta:          meta,
		Broken:        []Entry{},
		NotChecked:    []Entry{},
		ParseFailures: []ParseFailure{},
		Links:         make([]Entry, 0, len(links)),
	}

	ordered := slices.Clone(pages)
	slices.SortStableFunc(ordered, func(a, b *site.Page) int { return cmp.Compare(a.Seq, b.Seq) })
	for _, p := range ordered {
		if p.Status == site.ParseFailed {
			r.ParseFailures = append(r.ParseFailures, ParseFailure{Page: p.URLPath, Reason: p.ParseErr})
		}
	}

	sorted := slices.Clone(links)
	slices.SortStableFunc(sorted, compareLinks)

	t := &r.Summary
	t.Pages = len(pages)
	t.ParseFailures = len(r.ParseFailures)
	t.ExternalURLs = cache.URLs
	t.CacheHits = cache.Hits
	for _, l := range sorted {
		e := newEntry(l)
		r.Links = append(r.Links, e)

		t.Links++
		switch l.Kind {
		case link.Internal:
			t.Internal++
		case link.External:
			t.External++
		}
		switch l.Outcome {
		case link.OK:
			t.OK++
		case link.Broken:
			t.Broken++
			r.Broken = append(r.Broken, e)
		case link.BrokenAnchor:
			t.BrokenAnchors++
			r.Broken = append(r.Broken, e)
		case link.Skipped:
			t.Skipped++
		case link.NotChecked:
			t.NotChecked++
			r.NotChecked = append(r.NotChecked, e)
		}
	}
	return r
}

func compareLinks(a, b *link.Link) int {
	return cmp.Or(
		cmp.Compare(seqOf(a), seqOf(b)),
		cmp.Compare(a.Index, b.Index),
	)
}

func seqOf(l *link.Link) int {
	if l.Source == nil {
		return -1
	}
	return l.Source.Seq
}

func newEntry(l *link.Link) Entry {
	e := Entry{
		Href:     l.Href,
		Target:   l.Target,
		Kind:     l.Kind,
		Outcome:  l.Outcome,
		Status:   l.StatusCode,
		Reason:   l.Reason,
		Attempts: l.Attempts,
	}
	if l.Source != nil {
		e.Page = l.Source.URLPath
	}
	return e
}

// BrokenCount is the number of links that count against the run.
func (r *RunReport) BrokenCount() int {
	return r.Summary.Broken + r.Summary.BrokenAnchors
}

// Failed reports whether more than maxBroken links are broken.
func (r *RunReport) Failed(maxBroken int) bool {
	return r.BrokenCount() > maxBroken
}
