// Package link holds the hyperlink model shared by the extractor, the
// resolvers and the reporter.
package link

import "github.com/jestress/verifylinks/internal/site"

// Kind is the classification of a link.
type Kind string

const (
	Internal Kind = "internal"
	External Kind = "external"
)

// Outcome is the resolution state of a link.
type Outcome string

const (
	Pending      Outcome = "pending"
	OK           Outcome = "ok"
	Broken       Outcome = "broken"
	BrokenAnchor Outcome = "broken_anchor"
	Skipped      Outcome = "skipped"
	NotChecked   Outcome = "not_checked"
)

// IsBroken reports whether the outcome counts against the run.
func (o Outcome) IsBroken() bool {
	return o == Broken || o == BrokenAnchor
}

// Common reasons recorded on links.
const (
	ReasonFileNotFound   = "file not found"
	ReasonOutsideRoot    = "outside build directory"
	ReasonSkipExternal   = "external checks disabled"
	ReasonExcluded       = "excluded by pattern"
	ReasonDeadline       = "run deadline exceeded"
	ReasonMalformedHref  = "malformed href"
	ReasonAnchorNotFound = "anchor not found"
)

// Link is one hyperlink found on a page.
type Link struct {
	Source *site.Page
	// Index is the position of the link within its source page.
	Index int
	Href  string
	Kind  Kind

	// Path is the URL path of an internal link, unescaped. Empty means the
	// link targets its own page.
	Path     string
	Fragment string
	// URL is the normalized target of an external link.
	URL string

	// Target is the resolved file (relative to the build dir) or URL.
	Target     string
	Outcome    Outcome
	StatusCode int
	Reason     string
	Attempts   int
}

// Resolve records a terminal outcome on the link.
func (l *Link) Resolve(o Outcome, reason string) {
	l.Outcome = o
	l.Reason = reason
}
