// Package resolve checks internal links against the build directory.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/site"
)

// topFragment scrolls to the top of any document, declared or not.
const topFragment = "top"

// Options control internal resolution.
type Options struct {
	// BasePath is the URL prefix the site is served under (Docusaurus
	// baseUrl). It is stripped from root-relative links before lookup.
	BasePath string
	// CheckAnchors enables fragment validation.
	CheckAnchors bool
}

// Resolver resolves internal links. It is not safe for concurrent use.
type Resolver struct {
	root     string
	basePath string
	anchors  bool

	pages      map[string]*site.Page
	normalized map[*site.Page]map[string]struct{}
}

// New returns a Resolver for the build directory root, which must be
// absolute, and the pages discovered under it.
func New(root string, pages []*site.Page, opts Options) *Resolver {
	r := &Resolver{
		root:       filepath.Clean(root),
		basePath:   cleanBasePath(opts.BasePath),
		anchors:    opts.CheckAnchors,
		pages:      make(map[string]*site.Page, len(pages)),
		normalized: make(map[*site.Page]map[string]struct{}),
	}
	for _, p := range pages {
		r.pages[p.Canonical] = p
	}
	return r
}

func cleanBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// Resolve sets the outcome of an internal link. Links that already carry an
// outcome, such as excluded or malformed ones, are left alone.
//
// Candidates are tried in order and the first existing regular file wins:
// the path itself, the path plus ".html", and the path plus "/index.html".
// Paths written with a trailing slash skip the ".html" candidate.
func (r *Resolver) Resolve(l *link.Link) {
	if l.Kind != link.Internal || l.Outcome != link.Pending {
		return
	}

	if l.Path == "" {
		l.Target = r.rel(l.Source.Path)
		r.checkFragment(l, l.Source)
		return
	}

	file := r.locate(l)
	rel, err := filepath.Rel(r.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		l.Target = l.Path
		l.Resolve(link.Broken, link.ReasonOutsideRoot)
		return
	}

	match, ok := r.match(file, strings.HasSuffix(l.Path, "/"))
	if !ok {
		l.Target = filepath.ToSlash(rel)
		l.Resolve(link.Broken, link.ReasonFileNotFound)
		return
	}
	l.Target = r.rel(match)

	var target *site.Page
	if canon, err := filepath.EvalSymlinks(match); err == nil {
		target = r.pages[canon]
	}
	r.checkFragment(l, target)
}

// locate joins the link path onto the build dir or the source page's
// directory.
func (r *Resolver) locate(l *link.Link) string {
	p := l.Path
	if strings.HasPrefix(p, "/") {
		if r.basePath != "" && (p == r.basePath || strings.HasPrefix(p, r.basePath+"/")) {
			p = strings.TrimPrefix(p, r.basePath)
		}
		return filepath.Join(r.root, filepath.FromSlash(p))
	}
	return filepath.Join(filepath.Dir(l.Source.Path), filepath.FromSlash(p))
}

func (r *Resolver) match(file string, dirStyle bool) (string, bool) {
	candidates := []string{file}
	if !dirStyle {
		candidates = append(candidates, file+".html")
	}
	candidates = append(candidates, filepath.Join(file, "index.html"))

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// checkFragment finishes a link whose file exists. target is nil for files
// that are not walked HTML pages; their fragments cannot be checked.
func (r *Resolver) checkFragment(l *link.Link, target *site.Page) {
	if !r.anchors || l.Fragment == "" || target == nil {
		l.Resolve(link.OK, "")
		return
	}
	if r.hasAnchor(target, l.Fragment) {
		l.Resolve(link.OK, "")
		return
	}
	l.Resolve(link.BrokenAnchor, fmt.Sprintf("%s: #%s", link.ReasonAnchorNotFound, l.Fragment))
}

func (r *Resolver) hasAnchor(p *site.Page, fragment string) bool {
	if fragment == topFragment || p.HasAnchor(fragment) {
		return true
	}
	n := NormalizeAnchor(fragment)
	if n == "" {
		return false
	}
	_, ok := r.index(p)[n]
	return ok
}

func (r *Resolver) index(p *site.Page) map[string]struct{} {
	if idx, ok := r.normalized[p]; ok {
		return idx
	}
	idx := make(map[string]struct{}, len(p.Anchors))
	for id := range p.Anchors {
		if n := NormalizeAnchor(id); n != "" {
			idx[n] = struct{}{}
		}
	}
	r.normalized[p] = idx
	return idx
}

func (r *Resolver) rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
