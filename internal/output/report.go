package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/threshold"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Agent Summary ---")
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Metric values:     %d\n", stats.TotalEmissions)
	fmt.Fprintf(w, "Values/sec:        %.2f\n", stats.EmissionsPerSec)
	fmt.Fprintf(w, "WS reconnects:     %d\n", stats.Reconnects)
	fmt.Fprintf(w, "WS connected:      %t\n", stats.Connected)

	if len(stats.Emitted) > 0 {
		fmt.Fprintln(w, "\nCollected Metrics:")
		fields := make([]string, 0, len(stats.Emitted))
		for f := range stats.Emitted {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			v, ok := stats.Values[f]
			if !ok {
				fmt.Fprintf(w, "  %-18s %d\n", f+":", stats.Emitted[f])
				continue
			}
			fmt.Fprintf(w, "  %-18s count=%d, last=%s, p75=%s, max=%s\n",
				f+":", v.Count, formatValue(v.Last), formatValue(v.P75), formatValue(v.Max))
		}
	}

	if len(stats.Channels) > 0 {
		fmt.Fprintln(w, "\nDeliveries:")
		for _, ch := range stats.Channels {
			fmt.Fprintf(
				w,
				"  - %s: total=%d, successes=%d, failures=%d, dropped=%d, p50=%s, p99=%s\n",
				ch.Channel,
				ch.Total,
				ch.Successes,
				ch.Failures,
				ch.Dropped,
				ch.P50Latency,
				ch.P99Latency,
			)
		}
	}

	errs := make(map[string]map[string]int)
	for _, ch := range stats.Channels {
		if len(ch.Errors) == 0 {
			continue
		}
		named := make(map[string]int, len(ch.Errors))
		for typ, n := range ch.Errors {
			named[metrics.FriendlyErrorName(typ)] += n
		}
		errs[ch.Channel] = named
	}
	if len(errs) > 0 {
		fmt.Fprintln(w, "\nDelivery Errors:")
		writeErrorBuckets(w, errs, "  ")
	}
}

// PrintThresholdResults writes one line per evaluated budget followed by a
// pass count. Nothing is written when results is empty.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	failed := threshold.Failed(results)
	fmt.Fprintf(w, "  %d/%d passed\n", len(results)-failed, len(results))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// ThresholdResultJSON is the JSON form of one budget outcome.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

type jsonReport struct {
	metrics.Stats
	Thresholds []ThresholdResultJSON `json:"thresholds,omitempty"`
}

// PrintJSONReportWithThresholds outputs the stats with budget outcomes
// appended under "thresholds".
func PrintJSONReportWithThresholds(w io.Writer, stats metrics.Stats, results []threshold.Result) error {
	report := jsonReport{Stats: stats}
	for _, r := range results {
		report.Thresholds = append(report.Thresholds, ThresholdResultJSON{
			Threshold: r.Threshold.Raw,
			Metric:    r.Threshold.Metric,
			Aggregate: r.Threshold.Aggregate,
			Operator:  r.Threshold.Operator,
			Expected:  r.Threshold.Value,
			Actual:    r.Actual,
			Pass:      r.Pass,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeErrorBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenErrorBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, row.Channel, row.Error, row.Count)
	}
}
