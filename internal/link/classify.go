package link

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jestress/verifylinks/internal/site"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Classifier turns raw hrefs into Links. An href with neither scheme nor host
// is internal; http(s) hrefs are external unless their host is one of the
// site's own hosts.
type Classifier struct {
	hosts map[string]struct{}
}

// NewClassifier returns a Classifier that treats the given hosts as the site
// itself. Hosts are compared case-insensitively and may carry a port.
func NewClassifier(internalHosts []string) *Classifier {
	c := &Classifier{hosts: make(map[string]struct{}, len(internalHosts))}
	for _, h := range internalHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			c.hosts[h] = struct{}{}
		}
	}
	return c
}

// Classify builds the Link for href found at position index on page. It
// returns false for hrefs that are not checkable hyperlinks: empty values and
// non-web schemes such as mailto:, tel: and javascript:.
func (c *Classifier) Classify(page *site.Page, index int, href string) (*Link, bool) {
	raw := strings.TrimSpace(href)
	if raw == "" {
		return nil, false
	}

	l := &Link{Source: page, Index: index, Href: href, Outcome: Pending}

	u, err := url.Parse(raw)
	if err != nil {
		l.Kind = Internal
		if strings.Contains(raw, "://") {
			l.Kind = External
		}
		l.Target = raw
		l.Resolve(Broken, fmt.Sprintf("%s: %v", ReasonMalformedHref, err))
		return l, true
	}

	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "" && u.Host == "":
		l.Kind = Internal
		l.Path = u.Path
		l.Fragment = u.Fragment
		return l, true
	case scheme == "":
		// Protocol-relative.
		u.Scheme = "https"
	case scheme != "http" && scheme != "https":
		return nil, false
	}

	if c.isInternalHost(u) {
		l.Kind = Internal
		l.Path = u.Path
		if l.Path == "" {
			l.Path = "/"
		}
		l.Fragment = u.Fragment
		return l, true
	}

	l.Kind = External
	l.Fragment = u.Fragment
	l.URL = NormalizeURL(u)
	l.Target = l.URL
	return l, true
}

func (c *Classifier) isInternalHost(u *url.URL) bool {
	if len(c.hosts) == 0 {
		return false
	}
	if _, ok := c.hosts[strings.ToLower(u.Host)]; ok {
		return true
	}
	_, ok := c.hosts[strings.ToLower(u.Hostname())]
	return ok
}

// NormalizeURL returns the cache key form of an external URL: lowercase
// scheme and host, default port removed, dot-segments resolved, fragment
// dropped and an empty path replaced by "/". The query is kept verbatim.
func NormalizeURL(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Fragment = ""
	n.RawFragment = ""

	host := strings.ToLower(n.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := n.Port(); port != "" && defaultPorts[n.Scheme] != port {
		host += ":" + port
	}
	n.Host = host

	switch {
	case n.Path == "":
		n.Path = "/"
		n.RawPath = ""
	case hasDotSegment(n.Path):
		trailing := strings.HasSuffix(n.Path, "/")
		n.Path = path.Clean(n.Path)
		if trailing && n.Path != "/" {
			n.Path += "/"
		}
		n.RawPath = ""
	}
	return n.String()
}

func hasDotSegment(p string) bool {
	return strings.Contains(p, "/./") || strings.Contains(p, "/../") ||
		strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")
}

// Filter matches hrefs against exclude globs.
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles the exclude patterns. "*" matches any run of characters,
// including "/".
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Match reports whether the link's href or external URL matches a pattern.
func (f *Filter) Match(l *Link) bool {
	if f == nil {
		return false
	}
	for _, g := range f.globs {
		if g.Match(strings.TrimSpace(l.Href)) || (l.URL != "" && g.Match(l.URL)) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns in order.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	return f.patterns
}
