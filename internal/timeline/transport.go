package timeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type navigationKey struct{}

// WithNavigation marks requests made with ctx as the page navigation, so the
// Transport records them as navigation entries instead of resources.
func WithNavigation(ctx context.Context) context.Context {
	return context.WithValue(ctx, navigationKey{}, true)
}

func isNavigation(ctx context.Context) bool {
	v, _ := ctx.Value(navigationKey{}).(bool)
	return v
}

// Transport is an http.RoundTripper that records each request it carries as a
// timeline entry once the response body has been fully read or closed.
type Transport struct {
	Base   http.RoundTripper
	Buffer *Buffer
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(buf *Buffer, base http.RoundTripper) *Transport {
	return &Transport{Base: base, Buffer: buf}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	timing := &requestTiming{start: time.Now()}
	trace := &httptrace.ClientTrace{
		WroteHeaders: func() {
			timing.mark(&timing.requestStart)
		},
		GotFirstResponseByte: func() {
			timing.mark(&timing.responseStart)
		},
	}
	traced := req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := base.RoundTrip(traced)
	if err != nil {
		return nil, err
	}

	typ := EntryResource
	if isNavigation(req.Context()) {
		typ = EntryNavigation
	}
	resp.Body = &recordingBody{
		ReadCloser: resp.Body,
		buf:        t.Buffer,
		typ:        typ,
		name:       req.URL.String(),
		timing:     timing,
	}
	return resp, nil
}

type requestTiming struct {
	mu            sync.Mutex
	start         time.Time
	requestStart  time.Time
	responseStart time.Time
}

func (r *requestTiming) mark(field *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if field.IsZero() {
		*field = time.Now()
	}
}

func (r *requestTiming) snapshot() (start, requestStart, responseStart time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	requestStart = r.requestStart
	if requestStart.IsZero() {
		requestStart = r.start
	}
	responseStart = r.responseStart
	if responseStart.IsZero() {
		responseStart = requestStart
	}
	return r.start, requestStart, responseStart
}

type recordingBody struct {
	io.ReadCloser
	buf    *Buffer
	typ    EntryType
	name   string
	timing *requestTiming
	n      int64
	once   sync.Once
}

func (b *recordingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	if err == io.EOF {
		b.record()
	}
	return n, err
}

func (b *recordingBody) Close() error {
	err := b.ReadCloser.Close()
	b.record()
	return err
}

func (b *recordingBody) record() {
	b.once.Do(func() {
		if b.buf == nil {
			return
		}
		end := time.Now()
		start, requestStart, responseStart := b.timing.snapshot()
		startMs := b.buf.Since(start)
		endMs := b.buf.Since(end)
		b.buf.Record(Entry{
			Type:          b.typ,
			Name:          b.name,
			StartTime:     startMs,
			Duration:      endMs - startMs,
			TransferSize:  b.n,
			RequestStart:  b.buf.Since(requestStart),
			ResponseStart: b.buf.Since(responseStart),
			ResponseEnd:   endMs,
		})
	})
}
