// Package httpclient delivers metric records to the ingestion REST API.
//
// The [APIClient] is a thin, stateless wrapper: every call is a single POST
// that either succeeds or returns an error. It performs no batching, retry,
// or backoff; callers decide what to do with failures.
//
//	api := httpclient.NewAPIClient(httpclient.APIConfig{
//		APIKey:    key,
//		ProjectID: project,
//		Client:    httpclient.NewClient(10 * time.Second),
//	})
//	if err := api.SendMetrics(ctx, m); err != nil {
//		var apiErr *httpclient.APIError
//		if errors.As(err, &apiErr) { ... }
//	}
//
// Requests run inside an OpenTelemetry client span and carry W3C trace
// context headers when a propagator is installed.
package httpclient
