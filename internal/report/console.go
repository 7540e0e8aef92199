package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/jestress/verifylinks/internal/link"
)

// ConsoleOptions controls the console summary.
type ConsoleOptions struct {
	Color bool
	// ShowAll lists every link instead of only the broken ones.
	ShowAll bool
	// MaxBroken is the threshold used for the final verdict line.
	MaxBroken int
}

// ColorEnabled reports whether output to f should be colored. Colors are off
// when noColor is set, NO_COLOR is present, or f is not a terminal.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Console renders a RunReport for humans.
type Console struct {
	w    io.Writer
	opts ConsoleOptions
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	return &Console{w: w, opts: opts}
}

func (c *Console) paint(s string, colors ...text.Color) string {
	if !c.opts.Color {
		return s
	}
	// The escape sequences are written directly so the decision made by
	// ColorEnabled is not overridden by go-pretty's own environment checks.
	return text.Colors(colors).EscapeSeq() + s + text.Reset.EscapeSeq()
}

func (c *Console) outcomeColor(o link.Outcome) []text.Color {
	switch o {
	case link.OK:
		return []text.Color{text.FgGreen}
	case link.Broken, link.BrokenAnchor:
		return []text.Color{text.FgRed, text.Bold}
	case link.NotChecked:
		return []text.Color{text.FgYellow}
	default:
		return []text.Color{text.FgHiBlack}
	}
}

// Render writes the summary, the broken links grouped by page and the
// verdict line.
func (c *Console) Render(r *RunReport) error {
	if _, err := fmt.Fprintf(c.w, "Checked %d links on %d pages in %.1fs\n\n",
		r.Summary.Links, r.Summary.Pages, r.Meta.Seconds); err != nil {
		return err
	}

	if err := c.writeTable(c.summaryTable(r)); err != nil {
		return err
	}

	if c.opts.ShowAll && len(r.Links) > 0 {
		if err := c.section("All links", r.Links); err != nil {
			return err
		}
	} else if len(r.Broken) > 0 {
		if err := c.section("Broken links", r.Broken); err != nil {
			return err
		}
	}
	if len(r.NotChecked) > 0 && !c.opts.ShowAll {
		if err := c.section("Not checked", r.NotChecked); err != nil {
			return err
		}
	}
	if len(r.ParseFailures) > 0 {
		if _, err := fmt.Fprintf(c.w, "\n%s\n", c.paint(fmt.Sprintf("Parse failures (%d)", len(r.ParseFailures)), text.FgYellow)); err != nil {
			return err
		}
		for _, pf := range r.ParseFailures {
			if _, err := fmt.Fprintf(c.w, "  %s: %s\n", pf.Page, pf.Reason); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(c.w, "\n%s\n", c.verdict(r))
	return err
}

func (c *Console) summaryTable(r *RunReport) table.Writer {
	s := r.Summary
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"State", "Links"})
	t.AppendRows([]table.Row{
		{c.paint("ok", c.outcomeColor(link.OK)...), s.OK},
		{c.paint("broken", c.outcomeColor(link.Broken)...), s.Broken},
		{c.paint("broken anchor", c.outcomeColor(link.BrokenAnchor)...), s.BrokenAnchors},
		{c.paint("skipped", c.outcomeColor(link.Skipped)...), s.Skipped},
		{c.paint("not checked", c.outcomeColor(link.NotChecked)...), s.NotChecked},
	})
	t.AppendFooter(table.Row{"total", s.Links})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	return t
}

// section lists entries with the page column merged so links read grouped by
// source page.
func (c *Console) section(title string, entries []Entry) error {
	if _, err := fmt.Fprintf(c.w, "\n%s\n", c.paint(fmt.Sprintf("%s (%d)", title, len(entries)), text.Bold)); err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Page", "Link", "State", "Detail"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Page, e.Href, c.paint(string(e.Outcome), c.outcomeColor(e.Outcome)...), detail(e)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	return c.writeTable(t)
}

func (c *Console) writeTable(t table.Writer) error {
	_, err := io.WriteString(c.w, t.Render()+"\n")
	return err
}

func (c *Console) verdict(r *RunReport) string {
	n := r.BrokenCount()
	if r.Failed(c.opts.MaxBroken) {
		return c.paint(fmt.Sprintf("FAILED: %d broken links (allowed %d)", n, c.opts.MaxBroken), text.FgRed, text.Bold)
	}
	if n == 0 {
		return c.paint("OK: no broken links", text.FgGreen, text.Bold)
	}
	return c.paint(fmt.Sprintf("OK: %d broken links within the allowed %d", n, c.opts.MaxBroken), text.FgYellow, text.Bold)
}

func detail(e Entry) string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Status != 0:
		return strconv.Itoa(e.Status)
	default:
		return e.Target
	}
}
