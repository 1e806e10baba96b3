// Package threshold evaluates performance budgets such as "lcp:p75 < 2500"
// against the agent's collected statistics.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/perfmaster/agent/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "lcp", "cls", "rest_failed"
	Aggregate string  // e.g., "p75", "max", "last", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// Metric fields that can be budgeted, named as in the metric records.
var valueMetrics = []string{
	"lcp", "fid", "cls", "fcp", "ttfb",
	"memory_usage", "cpu_usage", "bundle_size", "render_time",
	"network_requests", "dom_nodes",
}

// Delivery metrics and the channel they describe.
var deliveryMetrics = map[string]string{
	"rest_failed":       metrics.ChannelREST,
	"rest_duration":     metrics.ChannelREST,
	"web_vitals_failed": metrics.ChannelWebVitals,
	"websocket_dropped": metrics.ChannelWebSocket,
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "lcp:p75 < 2500"              (metric value percentile)
// - "cls:max <= 0.1"              (min, max, avg, last, count also work)
// - "rest_failed:rate < 0.05"     (REST failure ratio as decimal)
// - "rest_duration:p99 < 800"     (REST latency in ms)
// - "websocket_dropped:count < 10"
// - "ws_reconnects:count <= 5"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'lcp:p75 < 2500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates := aggregatesFor(metric)
	if aggregates == nil {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s, rest_failed, rest_duration, web_vitals_failed, websocket_dropped, ws_reconnects)", metric, strings.Join(valueMetrics, ", "))
	}

	if !slices.Contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}

	if !slices.Contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

var (
	valueAggregates    = []string{"p50", "p75", "p90", "p95", "p99", "avg", "min", "max", "last", "count"}
	latencyAggregates  = []string{"p50", "p90", "p99", "avg", "min", "max"}
	outcomeAggregates  = []string{"rate", "count"}
	operators          = []string{"<", "<=", ">", ">=", "=="}
	reconnectAggregate = []string{"count"}
)

func isValueMetric(metric string) bool {
	return slices.Contains(valueMetrics, metric)
}

// aggregatesFor returns the aggregates metric accepts, or nil when the metric
// is unknown.
func aggregatesFor(metric string) []string {
	switch {
	case isValueMetric(metric):
		return valueAggregates
	case metric == "ws_reconnects":
		return reconnectAggregate
	case metric == "rest_duration":
		return latencyAggregates
	}
	if _, ok := deliveryMetrics[metric]; ok {
		return outcomeAggregates
	}
	return nil
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch {
	case isValueMetric(t.Metric):
		return extractValueMetric(t.Metric, t.Aggregate, stats)
	case t.Metric == "ws_reconnects":
		return float64(stats.Reconnects), nil
	case t.Metric == "rest_duration":
		ch, _ := stats.Channel(metrics.ChannelREST)
		return extractLatencyMetric(t.Aggregate, ch)
	}
	channel, ok := deliveryMetrics[t.Metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	ch, _ := stats.Channel(channel)
	if t.Metric == "websocket_dropped" {
		return extractRatio(t.Aggregate, ch.Dropped, ch.Total+ch.Dropped)
	}
	return extractRatio(t.Aggregate, ch.Failures, ch.Total)
}

func extractValueMetric(metric, aggregate string, stats metrics.Stats) (float64, error) {
	vs, ok := stats.Values[metric]
	if aggregate == "count" {
		return float64(vs.Count), nil
	}
	if !ok || vs.Count == 0 {
		return 0, fmt.Errorf("no %s values collected", metric)
	}
	switch aggregate {
	case "p50":
		return vs.P50, nil
	case "p75":
		return vs.P75, nil
	case "p90":
		return vs.P90, nil
	case "p95":
		return vs.P95, nil
	case "p99":
		return vs.P99, nil
	case "avg":
		return vs.Mean, nil
	case "min":
		return vs.Min, nil
	case "max":
		return vs.Max, nil
	case "last":
		return vs.Last, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}
}

func extractLatencyMetric(aggregate string, ch metrics.ChannelStats) (float64, error) {
	switch aggregate {
	case "p50":
		return ch.P50LatencyMs, nil
	case "p90":
		return ch.P90LatencyMs, nil
	case "p99":
		return ch.P99LatencyMs, nil
	case "avg":
		return ch.MeanLatencyMs, nil
	case "min":
		return ch.MinLatencyMs, nil
	case "max":
		return ch.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for rest_duration", aggregate)
	}
}

func extractRatio(aggregate string, part, total int64) (float64, error) {
	switch aggregate {
	case "count":
		return float64(part), nil
	case "rate":
		if total == 0 {
			return 0, nil
		}
		return float64(part) / float64(total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
