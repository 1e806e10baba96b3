package httpclient

import (
	"net"
	"net/http"
	"time"
)

// ClientOption customises the client built by NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	userAgent string
	wrap      func(http.RoundTripper) http.RoundTripper
}

// WithUserAgent sets the User-Agent header on every request that does not
// already carry one.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithRoundTripper wraps the pooled transport, e.g. to record timings.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.wrap = wrap }
}

// NewClient returns the client used for backend deliveries. Metric posts are
// small and frequent, so a few idle connections per host are kept warm and
// dials fail fast.
func NewClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	if o.wrap != nil {
		rt = o.wrap(rt)
	}
	if o.userAgent != "" {
		rt = &userAgentTransport{base: rt, userAgent: o.userAgent}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
