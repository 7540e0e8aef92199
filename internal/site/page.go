package site

// ParseStatus records whether a page's HTML could be parsed cleanly.
type ParseStatus string

const (
	ParseOK     ParseStatus = "ok"
	ParseFailed ParseStatus = "failed"
)

// Page is one HTML file in the built site.
type Page struct {
	// Path is the absolute path as reached by the walk.
	Path string
	// Canonical is Path with every symlink resolved. Pages are indexed by it.
	Canonical string
	// URLPath is the slash-separated path relative to the build directory,
	// with a leading "/".
	URLPath string
	// Seq is the discovery order, starting at 0.
	Seq int

	// Anchors holds every id and anchor name declared on the page.
	Anchors map[string]struct{}

	Status   ParseStatus
	ParseErr string
}

// AddAnchor records an id declared on the page.
func (p *Page) AddAnchor(id string) {
	if id == "" {
		return
	}
	if p.Anchors == nil {
		p.Anchors = make(map[string]struct{})
	}
	p.Anchors[id] = struct{}{}
}

// HasAnchor reports whether id was declared verbatim on the page.
func (p *Page) HasAnchor(id string) bool {
	_, ok := p.Anchors[id]
	return ok
}

// Fail marks the page as not cleanly parsed. The first reason wins.
func (p *Page) Fail(reason string) {
	if p.Status == ParseFailed {
		return
	}
	p.Status = ParseFailed
	p.ParseErr = reason
}
