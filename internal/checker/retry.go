package checker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jestress/verifylinks/internal/link"
)

// RetryPolicy bounds the attempts made for one external URL.
type RetryPolicy struct {
	// Retries is the number of attempts made after the first one.
	Retries int
	// Backoff is the delay before the first retry; it doubles each time.
	Backoff time.Duration
	// MaxBackoff caps any single delay. Zero means no cap.
	MaxBackoff time.Duration
}

// MaxAttempts is the total number of attempts, including the first.
func (p RetryPolicy) MaxAttempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// Delay returns the wait after the given number of failed attempts:
// Backoff * 2^(failed-1), capped at MaxBackoff.
func (p RetryPolicy) Delay(failed int) time.Duration {
	if p.Backoff <= 0 || failed < 1 {
		return 0
	}
	d := float64(p.Backoff) * math.Pow(2, float64(failed-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type checkState int

const (
	statePending checkState = iota
	stateInFlight
	stateRetrying
	stateOK
	stateBroken
	stateAbandoned
)

func (s checkState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateInFlight:
		return "in_flight"
	case stateRetrying:
		return "retrying"
	case stateOK:
		return "ok"
	case stateBroken:
		return "broken"
	case stateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// machine tracks one URL through
// pending → in_flight → {retrying → in_flight}* → {ok | broken}.
// A check interrupted by the run deadline ends abandoned.
type machine struct {
	policy    RetryPolicy
	state     checkState
	attempts  int
	last      probeResult
	exhausted bool
}

func newMachine(p RetryPolicy) *machine {
	return &machine{policy: p, state: statePending}
}

func (m *machine) done() bool {
	return m.state == stateOK || m.state == stateBroken || m.state == stateAbandoned
}

// begin moves the machine into in_flight for the next attempt.
func (m *machine) begin() {
	m.state = stateInFlight
}

// observe advances the machine from in_flight with the result of one attempt.
func (m *machine) observe(p probeResult) {
	m.attempts++
	m.last = p
	switch p.verdict() {
	case verdictOK:
		m.state = stateOK
	case verdictPermanent:
		m.state = stateBroken
	case verdictTransient:
		if m.attempts >= m.policy.MaxAttempts() {
			m.exhausted = true
			m.state = stateBroken
			return
		}
		m.state = stateRetrying
	}
}

// abandon ends the check without a verdict.
func (m *machine) abandon() {
	m.state = stateAbandoned
}

// nextDelay is the wait before the next attempt. A Retry-After hint from the
// server raises it, within MaxBackoff.
func (m *machine) nextDelay() time.Duration {
	d := m.policy.Delay(m.attempts)
	if ra := m.last.retryAfter; ra > d {
		d = ra
		if m.policy.MaxBackoff > 0 && d > m.policy.MaxBackoff {
			d = m.policy.MaxBackoff
		}
	}
	return d
}

func (m *machine) result(url string, at time.Time) Result {
	r := Result{
		URL:        url,
		StatusCode: m.last.status,
		Attempts:   m.attempts,
		Method:     m.last.method,
		CheckedAt:  at,
	}
	switch m.state {
	case stateOK:
		r.Outcome = link.OK
	case stateAbandoned:
		r.Outcome = link.NotChecked
		r.Reason = link.ReasonDeadline
	default:
		r.Outcome = link.Broken
		r.Reason = m.last.describe()
		if m.exhausted {
			r.Reason = fmt.Sprintf("retries exhausted after %d attempts: %s", m.attempts, r.Reason)
		}
	}
	return r
}
