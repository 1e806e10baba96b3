// Package collector observes performance signals and turns them into partial
// metric records.
//
// Each signal family is a [MetricSource]. [Sources] feature-detects the host
// facilities described by an [Env] and returns only the sources that can run;
// a missing facility means a missing source, never an error. The [Collector]
// starts every active source, stamps each emission with the page context, and
// hands it to a single callback. Sources run independently and may invoke the
// callback concurrently.
//
//	c := collector.New(collector.Env{
//		Timeline:  buf,
//		Memory:    collector.RuntimeMemory,
//		PageURL:   "https://shop.example.com/",
//		UserAgent: "perfmaster-agent/1.0",
//	})
//	c.Start(func(m perf.Metrics) { ... })
//	defer c.Stop()
package collector
