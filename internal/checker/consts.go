package checker

import "time"

const (
	DefaultWorkers    = 12 // concurrency for external checks
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 2
	DefaultBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff = 10 * time.Second
	DefaultUserAgent  = "verify-links/1.0 (+https://github.com/jestress/verifylinks)"

	maxRedirects  = 10
	maxDrainBytes = 64 << 10 // GET bodies are discarded after this many bytes
)
