// Package checker verifies external links over HTTP with a bounded pool of
// workers sharing one result cache.
package checker

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jestress/verifylinks/internal/link"
	"github.com/jestress/verifylinks/internal/logger"
	"github.com/jestress/verifylinks/internal/metrics"
)

// Config controls how external links are checked.
type Config struct {
	Workers   int
	Timeout   time.Duration // per request
	Policy    RetryPolicy
	UserAgent string
	// RateLimit is the number of requests per second allowed to one host.
	// Zero disables limiting.
	RateLimit float64
}

// Checker resolves external links.
type Checker struct {
	client  Doer
	cfg     Config
	cache   *Cache
	limiter *HostLimiter
	log     logger.Logger
	metrics *metrics.Metrics
	sleep   SleepFunc
}

// Option customizes a Checker.
type Option func(*Checker)

// WithSleep replaces the backoff sleeper.
func WithSleep(fn SleepFunc) Option {
	return func(c *Checker) { c.sleep = fn }
}

// WithMetrics records request counts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// New returns a Checker that sends requests through client and memoizes
// results in cache.
func New(client Doer, cache *Cache, cfg Config, log logger.Logger, opts ...Option) *Checker {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cache == nil {
		cache = NewCache()
	}
	c := &Checker{
		client:  client,
		cfg:     cfg,
		cache:   cache,
		limiter: NewHostLimiter(cfg.RateLimit),
		log:     log,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the result cache shared by the checker's workers.
func (c *Checker) Cache() *Cache {
	return c.cache
}

// CheckAll resolves every pending external link in links. Links sharing a
// URL are grouped so each URL takes at most one worker; already checked URLs
// are answered from the cache without one. Once ctx is done no new checks
// start and the remaining links end not_checked.
func (c *Checker) CheckAll(ctx context.Context, links []*link.Link) {
	var (
		order  []string
		groups = make(map[string][]*link.Link)
	)
	for _, l := range links {
		if l.Kind != link.External || l.Outcome != link.Pending {
			continue
		}
		if _, ok := groups[l.URL]; !ok {
			order = append(order, l.URL)
		}
		groups[l.URL] = append(groups[l.URL], l)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	var checked, expired int
	for _, u := range order {
		group := groups[u]
		checked += len(group)
		if _, ok := c.cache.Lookup(u); ok {
			c.share(group, nil)
			continue
		}
		if ctx.Err() != nil {
			expired += len(group)
			for _, l := range group {
				l.Resolve(link.NotChecked, link.ReasonDeadline)
			}
			continue
		}
		g.Go(func() error {
			c.share(group, func() Result { return c.check(ctx, u) })
			return nil
		})
	}
	_ = g.Wait()

	if expired > 0 {
		c.log.Warn("Deadline reached before all external links were checked",
			logger.Int("skipped", expired))
	}
	c.log.Info("External links checked",
		logger.Int("links", checked),
		logger.Int("urls", c.cache.Len()),
		logger.Int("requests", int(c.cache.Checks())),
	)
}

// share resolves the first link of group through the cache, running check if
// needed, and answers the rest from the stored result.
func (c *Checker) share(group []*link.Link, check func() Result) {
	key := group[0].URL
	apply(group[0], c.cache.Do(key, check))
	for _, l := range group[1:] {
		apply(l, c.cache.Do(key, nil))
	}
}

func apply(l *link.Link, r Result) {
	l.Target = r.URL
	l.StatusCode = r.StatusCode
	l.Attempts = r.Attempts
	l.Resolve(r.Outcome, r.Reason)
}

// check runs the retry machine for one URL to completion.
func (c *Checker) check(ctx context.Context, rawURL string) Result {
	m := newMachine(c.cfg.Policy)
	host := hostOf(rawURL)

	for !m.done() {
		if ctx.Err() != nil {
			m.abandon()
			break
		}
		if err := c.limiter.Wait(ctx, host); err != nil {
			m.abandon()
			break
		}

		m.begin()
		p := c.probe(ctx, rawURL)
		if ctx.Err() != nil {
			m.abandon()
			break
		}
		m.observe(p)

		if m.state == stateRetrying {
			d := m.nextDelay()
			c.log.Debug("Retrying external link",
				logger.String("url", rawURL),
				logger.Int("attempt", m.attempts),
				logger.String("last", p.describe()),
				logger.Duration("delay", d),
			)
			if err := c.sleep(ctx, d); err != nil {
				m.abandon()
			}
		}
	}

	r := m.result(rawURL, time.Now())
	c.log.Debug("External link resolved",
		logger.String("url", rawURL),
		logger.String("outcome", string(r.Outcome)),
		logger.Int("attempts", r.Attempts),
	)
	return r
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
