// Package timeline models the host's performance timeline: the stream of
// paint, input, layout-shift, navigation, and resource entries that metric
// sources observe.
//
// A [Timeline] is the facility the collector feature-detects against. The
// in-memory [Buffer] implements it and is fed by the HTTP [Transport] and
// [Prober], by recorded HTTP archives, or by pages posting raw entries to the
// [IngestHandler].
package timeline

import "errors"

// EntryType names a performance entry family.
type EntryType string

const (
	EntryLargestContentfulPaint EntryType = "largest-contentful-paint"
	EntryFirstInput             EntryType = "first-input"
	EntryLayoutShift            EntryType = "layout-shift"
	EntryNavigation             EntryType = "navigation"
	EntryResource               EntryType = "resource"
)

// AllEntryTypes lists every entry type the agent knows how to observe.
var AllEntryTypes = []EntryType{
	EntryLargestContentfulPaint,
	EntryFirstInput,
	EntryLayoutShift,
	EntryNavigation,
	EntryResource,
}

// ErrUnsupported is returned when observing an entry type the timeline does
// not provide.
var ErrUnsupported = errors.New("timeline: entry type not supported")

// Entry is a single performance entry. Times are milliseconds relative to the
// timeline origin. Fields that do not apply to an entry type stay zero.
type Entry struct {
	Type      EntryType `json:"entryType"`
	Name      string    `json:"name,omitempty"`
	StartTime float64   `json:"startTime"`
	Duration  float64   `json:"duration,omitempty"`

	// first-input
	ProcessingStart float64 `json:"processingStart,omitempty"`

	// layout-shift
	Value          float64 `json:"value,omitempty"`
	HadRecentInput bool    `json:"hadRecentInput,omitempty"`

	// navigation and resource
	TransferSize  int64   `json:"transferSize,omitempty"`
	RequestStart  float64 `json:"requestStart,omitempty"`
	ResponseStart float64 `json:"responseStart,omitempty"`
	ResponseEnd   float64 `json:"responseEnd,omitempty"`
}

// Observer is a live subscription to one entry type.
type Observer interface {
	Disconnect()
}

// Timeline is a source of performance entries.
type Timeline interface {
	// Supports reports whether entries of type t can be observed.
	Supports(t EntryType) bool
	// Observe delivers every future batch of type t entries to fn.
	Observe(t EntryType, fn func([]Entry)) (Observer, error)
	// EntriesByType returns the entries of type t recorded so far.
	EntriesByType(t EntryType) []Entry
	// OnLoad runs fn once the page load has completed. The returned cancel
	// func prevents a pending fn from running.
	OnLoad(fn func()) (cancel func())
}
