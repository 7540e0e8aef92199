package checker

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

var errTooManyRedirects = errors.New("too many redirects")

// NewHTTPClient returns the client used for external checks. Timeouts are
// applied per request through the context, so the client itself has none.
func NewHTTPClient(workers int) *http.Client {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        workers * 4,
			MaxIdleConnsPerHost: workers,
			IdleConnTimeout:     30 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, len(via))
			}
			return nil
		},
	}
}
