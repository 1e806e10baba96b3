package har

import (
	"fmt"
	"net/url"
	"time"

	"github.com/perfmaster/agent/internal/timeline"
)

// Options filters which archived requests become resource entries. The
// navigation request is always kept.
type Options struct {
	IncludeHosts []string // empty keeps every host
	ExcludeHosts []string
}

// ToEntries converts an archive into timeline entries. The first request of
// the first page becomes the navigation entry; every other request becomes a
// resource entry. Times are relative to the earliest start in the archive.
func ToEntries(h *HAR, opts Options) ([]timeline.Entry, error) {
	if h == nil || h.Log == nil {
		return nil, fmt.Errorf("HAR is nil or has nil log")
	}

	origin, ok := archiveOrigin(h.Log)
	if !ok {
		return nil, nil
	}

	navIndex := navigationIndex(h.Log)
	var entries []timeline.Entry
	for i, e := range h.Log.Entries {
		if e == nil || e.Request == nil {
			continue
		}
		started, err := parseTime(e.StartedDateTime)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		typ := timeline.EntryResource
		if i == navIndex {
			typ = timeline.EntryNavigation
		} else if !hostAllowed(e.Request.URL, opts) {
			continue
		}
		entries = append(entries, toEntry(e, typ, ms(started.Sub(origin))))
	}
	return entries, nil
}

// Replay records the archive into buf and marks the page loaded. It returns
// the number of entries recorded.
func Replay(buf *timeline.Buffer, h *HAR, opts Options) (int, error) {
	entries, err := ToEntries(h, opts)
	if err != nil {
		return 0, err
	}
	buf.Record(entries...)
	buf.MarkLoaded()
	return len(entries), nil
}

func toEntry(e *Entry, typ timeline.EntryType, start float64) timeline.Entry {
	var t Timings
	if e.Timings != nil {
		t = *e.Timings
	}
	requestStart := start + phase(t.Blocked) + phase(t.DNS) + phase(t.Connect)
	responseStart := requestStart + phase(t.Send) + phase(t.Wait)
	responseEnd := responseStart + phase(t.Receive)

	duration := e.Time
	if duration <= 0 {
		duration = responseEnd - start
	}
	return timeline.Entry{
		Type:          typ,
		Name:          e.Request.URL,
		StartTime:     start,
		Duration:      duration,
		TransferSize:  transferSize(e.Response),
		RequestStart:  requestStart,
		ResponseStart: responseStart,
		ResponseEnd:   responseEnd,
	}
}

func transferSize(r *Response) int64 {
	if r == nil {
		return 0
	}
	if r.TransferSize > 0 {
		return r.TransferSize
	}
	if r.BodySize >= 0 && r.HeadersSize >= 0 && r.BodySize+r.HeadersSize > 0 {
		return r.BodySize + r.HeadersSize
	}
	if r.Content != nil && r.Content.Size > 0 {
		return r.Content.Size
	}
	return 0
}

func navigationIndex(l *Log) int {
	pageID := ""
	if len(l.Pages) > 0 && l.Pages[0] != nil {
		pageID = l.Pages[0].ID
	}
	for i, e := range l.Entries {
		if e == nil || e.Request == nil {
			continue
		}
		if pageID == "" || e.PageRef == pageID {
			return i
		}
	}
	return -1
}

func archiveOrigin(l *Log) (time.Time, bool) {
	var origin time.Time
	consider := func(s string) {
		t, err := parseTime(s)
		if err != nil {
			return
		}
		if origin.IsZero() || t.Before(origin) {
			origin = t
		}
	}
	for _, p := range l.Pages {
		if p != nil {
			consider(p.StartedDateTime)
		}
	}
	for _, e := range l.Entries {
		if e != nil {
			consider(e.StartedDateTime)
		}
	}
	return origin, !origin.IsZero()
}

func hostAllowed(raw string, opts Options) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, h := range opts.ExcludeHosts {
		if u.Host == h {
			return false
		}
	}
	if len(opts.IncludeHosts) == 0 {
		return true
	}
	for _, h := range opts.IncludeHosts {
		if u.Host == h {
			return true
		}
	}
	return false
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid startedDateTime %q: %w", s, err)
	}
	return t, nil
}

func phase(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
