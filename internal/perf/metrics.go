package perf

import "sort"

// Metrics is a single metric emission. Only the fields of the metric family
// that just became available are populated; consumers treat each record as a
// partial delta, never as a full snapshot.
type Metrics struct {
	LCP             *float64 `json:"lcp,omitempty"`
	FID             *float64 `json:"fid,omitempty"`
	CLS             *float64 `json:"cls,omitempty"`
	FCP             *float64 `json:"fcp,omitempty"`
	TTFB            *float64 `json:"ttfb,omitempty"`
	MemoryUsage     *int64   `json:"memory_usage,omitempty"`
	CPUUsage        *float64 `json:"cpu_usage,omitempty"`
	BundleSize      *int64   `json:"bundle_size,omitempty"`
	RenderTime      *float64 `json:"render_time,omitempty"`
	NetworkRequests *int64   `json:"network_requests,omitempty"`
	DOMNodes        *int64   `json:"dom_nodes,omitempty"`

	Timestamp int64  `json:"timestamp"`
	PageURL   string `json:"page_url"`
	UserAgent string `json:"user_agent"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

// Values returns the populated optional fields keyed by JSON name.
func (m Metrics) Values() map[string]float64 {
	values := make(map[string]float64)
	setFloat := func(name string, v *float64) {
		if v != nil {
			values[name] = *v
		}
	}
	setInt := func(name string, v *int64) {
		if v != nil {
			values[name] = float64(*v)
		}
	}
	setFloat("lcp", m.LCP)
	setFloat("fid", m.FID)
	setFloat("cls", m.CLS)
	setFloat("fcp", m.FCP)
	setFloat("ttfb", m.TTFB)
	setInt("memory_usage", m.MemoryUsage)
	setFloat("cpu_usage", m.CPUUsage)
	setInt("bundle_size", m.BundleSize)
	setFloat("render_time", m.RenderTime)
	setInt("network_requests", m.NetworkRequests)
	setInt("dom_nodes", m.DOMNodes)
	return values
}

// Fields returns the JSON names of the populated optional fields, sorted.
func (m Metrics) Fields() []string {
	values := m.Values()
	if len(values) == 0 {
		return nil
	}
	fields := make([]string, 0, len(values))
	for name := range values {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// Empty reports whether no optional field is populated.
func (m Metrics) Empty() bool {
	return len(m.Fields()) == 0
}
