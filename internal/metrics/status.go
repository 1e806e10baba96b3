package metrics

import "sort"

// ErrorBucket represents the aggregated failure count for a channel/error pair.
type ErrorBucket struct {
	Channel string
	Error   string
	Count   int
}

// FlattenErrorBuckets converts a nested channel->error map into a sorted slice of ErrorBucket rows.
// Rows are sorted by descending count, then by channel/error for stability.
func FlattenErrorBuckets(buckets map[string]map[string]int) []ErrorBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0)
	for channel, errs := range buckets {
		for name, count := range errs {
			rows = append(rows, ErrorBucket{Channel: channel, Error: name, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Channel == rows[j].Channel {
				return rows[i].Error < rows[j].Error
			}
			return rows[i].Channel < rows[j].Channel
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
