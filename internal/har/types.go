// Package har reads HTTP archives (HAR 1.2) recorded by browsers and turns
// them into performance timeline entries that can be replayed through the
// collector.
package har

// HAR is the root of an HTTP archive.
type HAR struct {
	Log *Log `json:"log"`
}

// Log contains the archived pages and requests.
type Log struct {
	Version string   `json:"version"`
	Creator *Creator `json:"creator"`
	Pages   []*Page  `json:"pages,omitempty"`
	Entries []*Entry `json:"entries"`
}

// Creator describes the application that created the archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page describes a page within the archive.
type Page struct {
	ID              string       `json:"id"`
	StartedDateTime string       `json:"startedDateTime"`
	Title           string       `json:"title"`
	PageTimings     *PageTimings `json:"pageTimings"`
}

// PageTimings holds page-level load timings in milliseconds, -1 when unknown.
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad,omitempty"`
	OnLoad        float64 `json:"onLoad,omitempty"`
}

// Entry describes a single request/response pair.
type Entry struct {
	PageRef         string    `json:"pageref,omitempty"`
	StartedDateTime string    `json:"startedDateTime"`
	Time            float64   `json:"time"`
	Request         *Request  `json:"request"`
	Response        *Response `json:"response"`
	Timings         *Timings  `json:"timings"`
}

// Request describes the archived request line.
type Request struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Response describes the archived response sizes.
type Response struct {
	Status      int      `json:"status"`
	HeadersSize int64    `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
	Content     *Content `json:"content"`

	// Chromium exports the on-the-wire size as a custom field.
	TransferSize int64 `json:"_transferSize,omitempty"`
}

// Content describes the response body.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Timings holds request phase durations in milliseconds, -1 when a phase
// does not apply. SSL time is already included in Connect.
type Timings struct {
	Blocked float64 `json:"blocked,omitempty"`
	DNS     float64 `json:"dns,omitempty"`
	Connect float64 `json:"connect,omitempty"`
	Send    float64 `json:"send,omitempty"`
	Wait    float64 `json:"wait,omitempty"`
	Receive float64 `json:"receive,omitempty"`
	SSL     float64 `json:"ssl,omitempty"`
}
