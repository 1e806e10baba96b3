package timeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIngestHandlerRecordsEntries(t *testing.T) {
	buf := NewBuffer()
	h := IngestHandler(buf, nil)

	payload := `[
		{"entryType":"layout-shift","startTime":10,"value":0.05,"hadRecentInput":false},
		{"entryType":"first-input","startTime":100,"processingStart":112.5}
	]`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(payload)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	shifts := buf.EntriesByType(EntryLayoutShift)
	if len(shifts) != 1 || shifts[0].Value != 0.05 {
		t.Errorf("layout shifts = %+v", shifts)
	}
	inputs := buf.EntriesByType(EntryFirstInput)
	if len(inputs) != 1 || inputs[0].ProcessingStart != 112.5 {
		t.Errorf("first inputs = %+v", inputs)
	}
}

func TestIngestHandlerRejectsBadRequests(t *testing.T) {
	buf := NewBuffer()
	h := IngestHandler(buf, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed", http.MethodPost, "/entries", "{not json", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/entries", "", http.StatusMethodNotAllowed},
		{"load wrong method", http.MethodGet, "/load", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIngestHandlerMarksLoad(t *testing.T) {
	buf := NewBuffer()
	rec := httptest.NewRecorder()
	IngestHandler(buf, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/load", nil))
	if !buf.Loaded() {
		t.Error("Loaded() = false after POST /load")
	}
}
