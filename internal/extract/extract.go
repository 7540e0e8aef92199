// Package extract parses built HTML pages for hyperlinks and anchor targets.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/site"
)

const (
	linkSelector   = "a[href], area[href]"
	anchorSelector = "[id]"
	namedSelector  = "a[name]"
)

// Extractor pulls links and anchors out of one page at a time.
type Extractor struct {
	classifier *link.Classifier
	filter     *link.Filter
}

// New returns an Extractor. filter may be nil.
func New(classifier *link.Classifier, filter *link.Filter) *Extractor {
	return &Extractor{classifier: classifier, filter: filter}
}

// Extract reads the page's HTML from r, fills page.Anchors and returns the
// page's links in document order. It never fails: malformed input marks the
// page as failed and whatever could be recovered is still returned.
func (e *Extractor) Extract(page *site.Page, r io.Reader) []*link.Link {
	var buf bytes.Buffer
	root, err := html.Parse(io.TeeReader(r, &buf))
	data := buf.Bytes()

	if err != nil {
		page.Fail(fmt.Sprintf("parse html: %v", err))
		checkEncoding(page, data)
		return e.tokenize(page, data)
	}
	checkEncoding(page, data)

	doc := goquery.NewDocumentFromNode(root)

	doc.Find(anchorSelector).Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		page.AddAnchor(id)
	})
	doc.Find(namedSelector).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		page.AddAnchor(name)
	})

	var links []*link.Link
	doc.Find(linkSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		links = e.add(links, page, href)
	})
	return links
}

// tokenize is the fallback used when the tree parser gave up: it streams the
// bytes read so far and keeps every link and anchor it can see.
func (e *Extractor) tokenize(page *site.Page, data []byte) []*link.Link {
	var links []*link.Link
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			isLink := tok.Data == "a" || tok.Data == "area"
			for _, a := range tok.Attr {
				switch {
				case a.Key == "id":
					page.AddAnchor(a.Val)
				case a.Key == "name" && tok.Data == "a":
					page.AddAnchor(a.Val)
				case a.Key == "href" && isLink:
					links = e.add(links, page, a.Val)
				}
			}
		}
	}
}

func (e *Extractor) add(links []*link.Link, page *site.Page, href string) []*link.Link {
	l, ok := e.classifier.Classify(page, len(links), href)
	if !ok {
		return links
	}
	if l.Outcome == link.Pending && e.filter.Match(l) {
		l.Resolve(link.Skipped, link.ReasonExcluded)
	}
	return append(links, l)
}

// checkEncoding flags content the HTML parser silently repaired.
func checkEncoding(page *site.Page, data []byte) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		page.Fail(fmt.Sprintf("unexpected NUL byte at offset %d", i))
		return
	}
	if utf8.Valid(data) {
		return
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			page.Fail(fmt.Sprintf("invalid UTF-8 at offset %d", i))
			return
		}
		i += size
	}
}
