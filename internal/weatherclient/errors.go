package weatherclient

import "errors"

// Sentinel errors classify a failed fetch so callers (the worker pool's
// second-bucket accounting) can bucket it as throttled, timeout, or other
// without string-matching.
var (
	ErrThrottled        = errors.New("weatherclient: throttled (429)")
	ErrUpstreamTimeout  = errors.New("weatherclient: upstream timeout")
	ErrMalformedPayload = errors.New("weatherclient: malformed payload")
)
