package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type verdict int

const (
	verdictOK verdict = iota
	verdictTransient
	verdictPermanent
)

// probeResult is the outcome of one attempt: a HEAD, possibly followed by a GET.
type probeResult struct {
	method     string
	status     int
	err        error
	permanent  bool
	retryAfter time.Duration
}

func (p probeResult) verdict() verdict {
	switch {
	case p.err != nil:
		if p.permanent || errors.Is(p.err, errTooManyRedirects) {
			return verdictPermanent
		}
		return verdictTransient
	case p.status >= 200 && p.status < 400:
		return verdictOK
	case p.status == http.StatusTooManyRequests || p.status >= 500:
		return verdictTransient
	default:
		return verdictPermanent
	}
}

func (p probeResult) describe() string {
	if p.err != nil {
		return p.err.Error()
	}
	return fmt.Sprintf("HTTP %d %s", p.status, http.StatusText(p.status))
}

// headRejected lists statuses servers commonly return for HEAD when GET works.
func headRejected(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	default:
		return false
	}
}

// probe makes one attempt: HEAD first, then GET if the server refused HEAD or
// the HEAD failed in a way a GET might not.
func (c *Checker) probe(ctx context.Context, rawURL string) probeResult {
	head := c.request(ctx, http.MethodHead, rawURL)
	switch {
	case head.err == nil && !headRejected(head.status):
		return head
	case head.err != nil && (head.permanent || ctx.Err() != nil || isDialError(head.err)):
		return head
	}
	return c.request(ctx, http.MethodGet, rawURL)
}

func (c *Checker) request(ctx context.Context, method, rawURL string) probeResult {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res := probeResult{method: method}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		res.err = fmt.Errorf("build request: %w", err)
		res.permanent = true
		return res
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0)
		res.err = fmt.Errorf("%s request failed: %w", method, err)
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.ObserveRequest(method, resp.StatusCode)
	if method == http.MethodGet {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	}

	res.status = resp.StatusCode
	res.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return res
}

// isDialError reports failures that happen before any request is written;
// a GET would fail the same way.
func isDialError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
