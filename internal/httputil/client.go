package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgent identifies this service to upstream data hosts.
const UserAgent = "jwstcurves/1.0 (+https://github.com/lox/jwstcurves)"

// maxIdlePerHost covers a full batch of concurrent series fetches against a
// single data host.
const maxIdlePerHost = 16

// NewClient returns an HTTP client for payload fetches.
func NewClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = maxIdlePerHost
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: t,
	}
}
