package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/report"
	"github.com/jestress/verifylinks/internal/site"
)

func fixture() *report.RunReport {
	a := &site.Page{URLPath: "/a.html", Seq: 0, Status: site.ParseOK}
	b := &site.Page{URLPath: "/docs/b.html", Seq: 1, Status: site.ParseFailed, ParseErr: "invalid UTF-8 at offset 4"}

	links := []*link.Link{
		{Source: b, Index: 1, Href: "https://down.example/", Kind: link.External, URL: "https://down.example/", Target: "https://down.example/",
			Outcome: link.Broken, StatusCode: 503, Reason: "retries exhausted after 3 attempts: HTTP 503 Service Unavailable", Attempts: 3},
		{Source: a, Index: 2, Href: "c.html#nope", Kind: link.Internal, Target: "c.html", Outcome: link.BrokenAnchor, Reason: "anchor not found: #nope"},
		{Source: b, Index: 0, Href: "/a.html", Kind: link.Internal, Target: "a.html", Outcome: link.OK},
		{Source: a, Index: 0, Href: "missing.html", Kind: link.Internal, Target: "missing.html", Outcome: link.Broken, Reason: link.ReasonFileNotFound},
		{Source: a, Index: 1, Href: "https://slow.example/", Kind: link.External, Outcome: link.NotChecked, Reason: link.ReasonDeadline},
		{Source: b, Index: 2, Href: "https://skip.example/", Kind: link.External, Outcome: link.Skipped, Reason: link.ReasonSkipExternal},
	}
	meta := report.Meta{
		RunID:     "run-1",
		BuildDir:  "/tmp/build",
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
	return report.Build([]*site.Page{b, a}, links, meta, report.CacheStats{URLs: 2, Hits: 1})
}

func TestBuild_TotalsAndOrdering(t *testing.T) {
	r := fixture()

	assert.Equal(t, report.Totals{
		Pages:         2,
		ParseFailures: 1,
		Links:         6,
		Internal:      3,
		External:      3,
		OK:            1,
		Broken:        2,
		BrokenAnchors: 1,
		Skipped:       1,
		NotChecked:    1,
		ExternalURLs:  2,
		CacheHits:     1,
	}, r.Summary)
	assert.InDelta(t, 1.5, r.Meta.Seconds, 1e-9)

	var hrefs []string
	for _, e := range r.Broken {
		hrefs = append(hrefs, e.Page+" "+e.Href)
	}
	assert.Equal(t, []string{
		"/a.html missing.html",
		"/a.html c.html#nope",
		"/docs/b.html https://down.example/",
	}, hrefs)

	require.Len(t, r.NotChecked, 1)
	assert.Equal(t, "https://slow.example/", r.NotChecked[0].Href)
	assert.Equal(t, []report.ParseFailure{{Page: "/docs/b.html", Reason: "invalid UTF-8 at offset 4"}}, r.ParseFailures)
	require.Len(t, r.Links, 6)
	assert.Equal(t, "missing.html", r.Links[0].Href)
	assert.Equal(t, "https://skip.example/", r.Links[5].Href)
}

func TestBuild_Empty(t *testing.T) {
	r := report.Build(nil, nil, report.Meta{}, report.CacheStats{})
	assert.Equal(t, report.Totals{}, r.Summary)
	assert.NotNil(t, r.Broken)
	assert.False(t, r.Failed(0))
}

func TestFailed_Threshold(t *testing.T) {
	r := fixture()
	assert.Equal(t, 3, r.BrokenCount())
	assert.True(t, r.Failed(0))
	assert.True(t, r.Failed(2))
	assert.False(t, r.Failed(3))
}

func TestConsole_Render(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewConsole(&buf, report.ConsoleOptions{}).Render(fixture()))
	out := buf.String()

	assert.Contains(t, out, "Checked 6 links on 2 pages in 1.5s")
	assert.Contains(t, out, "Broken links (3)")
	assert.Contains(t, out, "missing.html")
	assert.Contains(t, out, "anchor not found: #nope")
	assert.Contains(t, out, "Not checked (1)")
	assert.Contains(t, out, "Parse failures (1)")
	assert.Contains(t, out, "FAILED: 3 broken links (allowed 0)")
	assert.NotContains(t, out, "\x1b[")
	assert.NotContains(t, out, "https://skip.example/")
}

func TestConsole_ShowAllAndColor(t *testing.T) {
	var buf bytes.Buffer
	opts := report.ConsoleOptions{Color: true, ShowAll: true, MaxBroken: 5}
	require.NoError(t, report.NewConsole(&buf, opts).Render(fixture()))
	out := buf.String()

	assert.Contains(t, out, "All links (6)")
	assert.Contains(t, out, "https://skip.example/")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "OK: 3 broken links within the allowed 5")
}

func TestConsole_Clean(t *testing.T) {
	var buf bytes.Buffer
	r := report.Build(nil, nil, report.Meta{}, report.CacheStats{})
	require.NoError(t, report.NewConsole(&buf, report.ConsoleOptions{}).Render(r))
	assert.Contains(t, buf.String(), "OK: no broken links")
	assert.NotContains(t, buf.String(), "Broken links")
}

func TestColorEnabled(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, report.ColorEnabled(f, false), "regular files are not terminals")
	assert.False(t, report.ColorEnabled(os.Stdout, true))
	t.Setenv("NO_COLOR", "1")
	assert.False(t, report.ColorEnabled(os.Stdout, false))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.WriteJSON(path, fixture()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		Meta struct {
			RunID    string  `json:"run_id"`
			BuildDir string  `json:"build_dir"`
			Seconds  float64 `json:"duration_seconds"`
		} `json:"meta"`
		Summary map[string]float64 `json:"summary"`
		Broken  []map[string]any   `json:"broken"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got.Meta.RunID)
	assert.Equal(t, "/tmp/build", got.Meta.BuildDir)
	assert.Equal(t, 1.5, got.Meta.Seconds)
	assert.Equal(t, float64(2), got.Summary["broken"])
	assert.Equal(t, float64(1), got.Summary["broken_anchors"])
	require.Len(t, got.Broken, 3)
	assert.Equal(t, "broken_anchor", got.Broken[1]["outcome"])
	assert.Equal(t, float64(503), got.Broken[2]["status"])
}

func TestWriteJSON_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, report.EncodeJSON(&a, fixture()))
	require.NoError(t, report.EncodeJSON(&b, fixture()))
	assert.Equal(t, a.String(), b.String())
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.csv")
	require.NoError(t, report.WriteCSV(path, fixture()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"page", "href", "target", "kind", "outcome", "status", "reason"}, rows[0])
	assert.Equal(t, []string{"/a.html", "missing.html", "missing.html", "internal", "broken", "", "file not found"}, rows[1])
	assert.Equal(t, "503", rows[3][5])
}

func TestWriteCSV_BadPath(t *testing.T) {
	err := report.WriteCSV(filepath.Join(t.TempDir(), "nope", "broken.csv"), fixture())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "create "))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, report.WriteXLSX(path, fixture()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Broken links", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Broken links")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "page", rows[0][0])
	assert.Equal(t, "c.html#nope", rows[2][1])
	assert.Equal(t, "503", rows[3][5])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Contains(t, summary, []string{"broken", "2"})
	assert.Contains(t, summary, []string{"run_id", "run-1"})
}
