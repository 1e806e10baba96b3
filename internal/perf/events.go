package perf

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Envelope types sent over the real-time channel.
const (
	TypeEvent = "event"
	TypeError = "error"
)

// WebVitalsMetric is a single named web-vital measurement reported on the
// dedicated web-vitals path.
type WebVitalsMetric struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
}

// NewWebVital builds a web-vital record with a fresh ID.
func NewWebVital(name string, value float64, now time.Time) WebVitalsMetric {
	return WebVitalsMetric{
		Name:      name,
		Value:     value,
		ID:        NewID(),
		Timestamp: now.UnixMilli(),
	}
}

// Event is a custom application event.
type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent wraps name and data in an event envelope.
func NewEvent(name string, data any, now time.Time) Event {
	return Event{
		Type:      TypeEvent,
		ID:        NewID(),
		Name:      name,
		Data:      data,
		Timestamp: now.UnixMilli(),
	}
}

// ErrorReport is an application error forwarded to the backend.
type ErrorReport struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type stackTracer interface {
	StackTrace() string
}

// NewErrorReport wraps err in an error envelope. The stack is taken from the
// error when it provides one, otherwise from the caller.
func NewErrorReport(err error, now time.Time) ErrorReport {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	var st stackTracer
	stack := ""
	if errors.As(err, &st) {
		stack = st.StackTrace()
	} else {
		stack = callerStack(3)
	}
	return ErrorReport{
		Type:      TypeError,
		ID:        NewID(),
		Message:   msg,
		Stack:     stack,
		Timestamp: now.UnixMilli(),
	}
}

func callerStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// NewID returns a new lexically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}
