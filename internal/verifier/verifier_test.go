package verifier_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jestress/verifylinks/internal/checker"
	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/logger"
	"github.com/jestress/verifylinks/internal/metrics"
	"github.com/jestress/verifylinks/internal/report"
	"github.com/jestress/verifylinks/internal/site"
	"github.com/jestress/verifylinks/internal/verifier"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func page(body string) string {
	return "<!DOCTYPE html><html><head><title>t</title></head><body>" + body + "</body></html>"
}

// entries indexes report links by "page href".
func entries(r *report.RunReport) map[string]report.Entry {
	m := make(map[string]report.Entry, len(r.Links))
	for _, e := range r.Links {
		m[e.Page+" "+e.Href] = e
	}
	return m
}

// noNetwork fails the test on any request.
type noNetwork struct{ t *testing.T }

func (n noNetwork) Do(req *http.Request) (*http.Response, error) {
	n.t.Errorf("unexpected request to %s", req.URL)
	return nil, errors.New("network disabled")
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func run(t *testing.T, opts verifier.Options, options ...verifier.Option) *report.RunReport {
	t.Helper()
	options = append(options, verifier.WithSleep(noSleep))
	r, err := verifier.New(opts, nil, options...).Run(context.Background())
	require.NoError(t, err)
	return r
}

func TestRun_InternalLinks(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`
			<a href="b.html#intro">intro</a>
			<a href="missing.html">missing</a>
			<a href="guide">suffix</a>
			<a href="docs/">index</a>
			<a href="/docs">index without slash</a>
			<a href="b.html#nope">bad anchor</a>
			<a href="img/logo.png">asset</a>
			<a href="#top">top</a>
			<a href="mailto:team@example.com">mail</a>`),
		"b.html":          page(`<h2 id="intro">Intro</h2>`),
		"guide.html":      page(`guide`),
		"docs/index.html": page(`docs`),
		"img/logo.png":    "png",
	})

	r := run(t, verifier.Options{BuildDir: root, CheckAnchors: true}, verifier.WithHTTPClient(noNetwork{t}))
	got := entries(r)

	tests := []struct {
		href    string
		outcome link.Outcome
		target  string
		reason  string
	}{
		{"b.html#intro", link.OK, "b.html", ""},
		{"missing.html", link.Broken, "missing.html", link.ReasonFileNotFound},
		{"guide", link.OK, "guide.html", ""},
		{"docs/", link.OK, "docs/index.html", ""},
		{"/docs", link.OK, "docs/index.html", ""},
		{"b.html#nope", link.BrokenAnchor, "b.html", "anchor not found: #nope"},
		{"img/logo.png", link.OK, "img/logo.png", ""},
		{"#top", link.OK, "a.html", ""},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			e, ok := got["/a.html "+tt.href]
			require.True(t, ok, "link %q not reported", tt.href)
			assert.Equal(t, tt.outcome, e.Outcome)
			assert.Equal(t, tt.target, e.Target)
			assert.Equal(t, tt.reason, e.Reason)
		})
	}

	assert.NotContains(t, got, "/a.html mailto:team@example.com")
	assert.Equal(t, 4, r.Summary.Pages)
	assert.Equal(t, 1, r.Summary.Broken)
	assert.Equal(t, 1, r.Summary.BrokenAnchors)
	require.Len(t, r.Broken, 2)
	assert.Equal(t, "/a.html", r.Broken[0].Page)
	assert.Equal(t, "missing.html", r.Broken[0].Href)
	assert.True(t, r.Failed(0))
}

func TestRun_NoAnchorCheck(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="b.html#nope">x</a>`),
		"b.html": page(``),
	})
	r := run(t, verifier.Options{BuildDir: root}, verifier.WithHTTPClient(noNetwork{t}))
	assert.Equal(t, link.OK, entries(r)["/a.html b.html#nope"].Outcome)
	assert.False(t, r.Failed(0))
}

func TestRun_SkipExternal(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="https://example.com">ext</a><a href="a.html">self</a>`),
	})

	r := run(t, verifier.Options{BuildDir: root, SkipExternal: true, CheckAnchors: true},
		verifier.WithHTTPClient(noNetwork{t}))

	e := entries(r)["/a.html https://example.com"]
	assert.Equal(t, link.Skipped, e.Outcome)
	assert.Equal(t, link.ReasonSkipExternal, e.Reason)
	assert.Equal(t, 1, r.Summary.Skipped)
	assert.False(t, r.Failed(0))
}

func TestRun_SkipExternalStillFailsOnInternal(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="https://example.com">ext</a><a href="gone.html">gone</a>`),
	})
	r := run(t, verifier.Options{BuildDir: root, SkipExternal: true}, verifier.WithHTTPClient(noNetwork{t}))
	assert.True(t, r.Failed(0))
}

func TestRun_ExternalCheckedOncePerURL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	href := srv.URL + "/page"
	root := writeSite(t, map[string]string{
		"a.html":     page(`<a href="` + href + `">1</a><a href="` + href + `#section">2</a>`),
		"b.html":     page(`<a href="` + href + `">3</a>`),
		"sub/c.html": page(`<a href="` + href + `">4</a>`),
	})

	r := run(t, verifier.Options{BuildDir: root, Checker: checker.Config{Workers: 4}})

	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, 4, r.Summary.External)
	assert.Equal(t, 4, r.Summary.OK)
	assert.Equal(t, 1, r.Summary.ExternalURLs)
	assert.Equal(t, int64(3), r.Summary.CacheHits)
}

func TestRun_SharedFlakyURL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	href := srv.URL + "/flaky"
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="` + href + `">a</a>`),
		"b.html": page(`<a href="` + href + `">b</a>`),
	})

	r := run(t, verifier.Options{
		BuildDir: root,
		Checker:  checker.Config{Workers: 2, Policy: checker.RetryPolicy{Retries: 2, Backoff: time.Millisecond}},
	})

	assert.Equal(t, int64(2), hits.Load(), "one attempt sequence shared by both pages")
	got := entries(r)
	for _, key := range []string{"/a.html " + href, "/b.html " + href} {
		assert.Equal(t, link.OK, got[key].Outcome, key)
		assert.Equal(t, 2, got[key].Attempts, key)
	}
	assert.False(t, r.Failed(0))
}

func TestRun_ExternalBrokenFailsRun(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := writeSite(t, map[string]string{"a.html": page(`<a href="` + srv.URL + `/x">x</a>`)})
	r := run(t, verifier.Options{BuildDir: root})

	require.Len(t, r.Broken, 1)
	assert.Equal(t, http.StatusNotFound, r.Broken[0].Status)
	assert.True(t, r.Failed(0))
	assert.False(t, r.Failed(1))
}

func TestRun_DeadlineLeavesLinksNotChecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	root := writeSite(t, map[string]string{"a.html": page(`<a href="` + srv.URL + `/hang">x</a>`)})
	r := run(t, verifier.Options{BuildDir: root, MaxDuration: 200 * time.Millisecond})

	require.Len(t, r.NotChecked, 1)
	assert.Equal(t, link.ReasonDeadline, r.NotChecked[0].Reason)
	assert.False(t, r.Failed(0), "not_checked links do not count as broken")
}

func TestRun_ParseFailureKeepsLinks(t *testing.T) {
	root := writeSite(t, map[string]string{
		"bad.html":  "<html><body><a href=\"good.html\">ok</a>\xff\xfe</body></html>",
		"good.html": page(``),
	})

	r := run(t, verifier.Options{BuildDir: root}, verifier.WithHTTPClient(noNetwork{t}))

	require.Len(t, r.ParseFailures, 1)
	assert.Equal(t, "/bad.html", r.ParseFailures[0].Page)
	assert.Contains(t, r.ParseFailures[0].Reason, "invalid UTF-8")
	assert.Equal(t, link.OK, entries(r)["/bad.html good.html"].Outcome)
}

func TestRun_Excluded(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="https://twitter.com/someone">t</a>`),
	})

	r := run(t, verifier.Options{BuildDir: root, Exclude: []string{"https://twitter.com/*"}},
		verifier.WithHTTPClient(noNetwork{t}))

	e := entries(r)["/a.html https://twitter.com/someone"]
	assert.Equal(t, link.Skipped, e.Outcome)
	assert.Equal(t, link.ReasonExcluded, e.Reason)
}

func TestRun_LogsRunOptions(t *testing.T) {
	root := writeSite(t, map[string]string{"a.html": page(`<p>a</p>`)})
	var buf bytes.Buffer
	log, err := logger.New(logger.Config{Format: logger.FormatJSON}, &buf)
	require.NoError(t, err)

	_, err = verifier.New(verifier.Options{
		BuildDir:     root,
		Exclude:      []string{"https://twitter.com/*", "*.pdf"},
		CheckAnchors: true,
		SkipExternal: true,
	}, log).Run(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"exclude":["https://twitter.com/*","*.pdf"]`)
	assert.Contains(t, out, `"check_anchors":true`)
	assert.Contains(t, out, `"skip_external":true`)
}

func TestRun_Deterministic(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html":         page(`<a href="z.html">z</a><a href="b.html#x">b</a><a href="https://example.com">e</a>`),
		"b.html":         page(`<a href="sub/">sub</a><a href="nope">nope</a>`),
		"sub/index.html": page(`<a href="../a.html">up</a>`),
	})
	opts := verifier.Options{BuildDir: root, SkipExternal: true, CheckAnchors: true}

	encode := func() string {
		r := run(t, opts, verifier.WithHTTPClient(noNetwork{t}))
		r.Meta = report.Meta{}
		var buf bytes.Buffer
		require.NoError(t, report.EncodeJSON(&buf, r))
		return buf.String()
	}
	assert.Equal(t, encode(), encode())
}

func TestRun_RecordsMetrics(t *testing.T) {
	root := writeSite(t, map[string]string{
		"a.html": page(`<a href="a.html">self</a><a href="gone.html">gone</a>`),
	})
	m := metrics.New()

	run(t, verifier.Options{BuildDir: root}, verifier.WithHTTPClient(noNetwork{t}), verifier.WithMetrics(m))

	n, err := testutil.GatherAndCount(m.Registry(), "verify_links_links_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_SetupErrors(t *testing.T) {
	_, err := verifier.New(verifier.Options{BuildDir: filepath.Join(t.TempDir(), "missing")}, nil).
		Run(context.Background())
	assert.ErrorIs(t, err, site.ErrDirectoryNotFound)

	_, err = verifier.New(verifier.Options{BuildDir: t.TempDir(), Exclude: []string{"[unclosed"}}, nil).
		Run(context.Background())
	assert.Error(t, err)
}
