// Package verifier runs one complete link check of a built site: walk,
// extract, resolve internal links, check external links and build the report.
package verifier

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jestress/verifylinks/internal/checker"
	"github.com/jestress/verifylinks/internal/extract"
	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/logger"
	"github.com/jestress/verifylinks/internal/metrics"
	"github.com/jestress/verifylinks/internal/report"
	"github.com/jestress/verifylinks/internal/resolve"
	"github.com/jestress/verifylinks/internal/site"
)

// Options describe one run.
type Options struct {
	BuildDir      string
	BasePath      string
	InternalHosts []string
	Exclude       []string
	CheckAnchors  bool
	SkipExternal  bool
	// MaxDuration bounds the whole run; zero means no deadline.
	MaxDuration time.Duration
	Checker     checker.Config
}

// Verifier wires the pipeline stages together.
type Verifier struct {
	opts    Options
	log     logger.Logger
	client  checker.Doer
	metrics *metrics.Metrics
	sleep   checker.SleepFunc
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the client used for external checks.
func WithHTTPClient(d checker.Doer) Option {
	return func(v *Verifier) { v.client = d }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithSleep replaces the retry backoff sleeper.
func WithSleep(fn checker.SleepFunc) Option {
	return func(v *Verifier) { v.sleep = fn }
}

// New returns a Verifier for opts.
func New(opts Options, log logger.Logger, options ...Option) *Verifier {
	if log == nil {
		log = logger.NewNop()
	}
	v := &Verifier{opts: opts, log: log}
	for _, o := range options {
		o(v)
	}
	if v.client == nil {
		v.client = checker.NewHTTPClient(opts.Checker.Workers)
	}
	return v
}

// Run checks every link in the build directory. Broken links are reported,
// not returned as errors; an error means the run could not start.
func (v *Verifier) Run(ctx context.Context) (*report.RunReport, error) {
	started := time.Now()
	if v.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, started.Add(v.opts.MaxDuration))
		defer cancel()
	}

	walker, err := site.NewWalker(v.opts.BuildDir)
	if err != nil {
		return nil, err
	}
	filter, err := link.NewFilter(v.opts.Exclude)
	if err != nil {
		return nil, err
	}
	ex := extract.New(link.NewClassifier(v.opts.InternalHosts), filter)

	runID := uuid.NewString()
	log := v.log.With(logger.String("run_id", runID))
	log.Info("Scanning build directory",
		logger.String("dir", walker.Root()),
		logger.Strings("exclude", filter.Patterns()),
		logger.Bool("check_anchors", v.opts.CheckAnchors),
		logger.Bool("skip_external", v.opts.SkipExternal),
	)

	var (
		pages []*site.Page
		links []*link.Link
	)
	for page, walkErr := range walker.Pages(ctx) {
		if walkErr != nil {
			if ctx.Err() != nil {
				log.Warn("Walk stopped", logger.Error(walkErr))
				break
			}
			log.Warn("Skipping unreadable entry", logger.Error(walkErr))
			continue
		}
		pages = append(pages, page)
		links = append(links, v.extractPage(log, ex, page)...)
	}
	log.Info("Pages extracted", logger.Int("pages", len(pages)), logger.Int("links", len(links)))

	res := resolve.New(walker.Root(), pages, resolve.Options{
		BasePath:     v.opts.BasePath,
		CheckAnchors: v.opts.CheckAnchors,
	})
	for _, l := range links {
		if l.Kind == link.Internal {
			res.Resolve(l)
		}
	}

	cache := checker.NewCache()
	if v.opts.SkipExternal {
		for _, l := range links {
			if l.Kind == link.External && l.Outcome == link.Pending {
				l.Resolve(link.Skipped, link.ReasonSkipExternal)
			}
		}
	} else {
		opts := []checker.Option{checker.WithMetrics(v.metrics)}
		if v.sleep != nil {
			opts = append(opts, checker.WithSleep(v.sleep))
		}
		checker.New(v.client, cache, v.opts.Checker, log, opts...).CheckAll(ctx, links)
	}

	finished := time.Now()
	r := report.Build(pages, links, report.Meta{
		RunID:     runID,
		BuildDir:  walker.Root(),
		StartedAt: started,
		Duration:  finished.Sub(started),
	}, report.CacheStats{URLs: cache.Len(), Hits: cache.Hits()})

	v.record(r, links, cache, finished)
	log.Info("Run complete",
		logger.Int("links", r.Summary.Links),
		logger.Int("broken", r.BrokenCount()),
		logger.Int("not_checked", r.Summary.NotChecked),
		logger.Duration("duration", r.Meta.Duration),
	)
	return r, nil
}

func (v *Verifier) extractPage(log logger.Logger, ex *extract.Extractor, page *site.Page) []*link.Link {
	f, err := os.Open(page.Path)
	if err != nil {
		page.Fail(fmt.Sprintf("open: %v", err))
		log.Warn("Cannot open page", logger.String("page", page.URLPath), logger.Error(err))
		return nil
	}
	defer func() { _ = f.Close() }()

	links := ex.Extract(page, f)
	if page.Status == site.ParseFailed {
		log.Warn("Page did not parse cleanly",
			logger.String("page", page.URLPath),
			logger.String("reason", page.ParseErr),
			logger.Int("links", len(links)),
		)
	}
	return links
}

func (v *Verifier) record(r *report.RunReport, links []*link.Link, cache *checker.Cache, finished time.Time) {
	if v.metrics == nil {
		return
	}
	for _, l := range links {
		v.metrics.ObserveLink(string(l.Kind), string(l.Outcome))
	}
	v.metrics.SetRun(r.Summary.Pages, r.Summary.ParseFailures, cache.Hits(), r.Meta.Duration, finished)
}
