// Package agent wires the metric collector, the real-time WebSocket channel,
// and the REST API client into a single reporting agent.
//
// An Agent fans every collected metric record out to both channels: the
// WebSocket send is fire-and-forget and the REST post runs in its own
// goroutine. Delivery failures are logged and counted, never returned.
//
// Most programs own an Agent directly:
//
//	a, err := agent.New(cfg, agent.WithTimeline(buf))
//	if err != nil {
//		return err
//	}
//	a.Start()
//	defer a.Stop()
//
// Init, Current, TrackEvent, TrackError, and Destroy manage one process-wide
// Agent for callers that prefer a global.
package agent
