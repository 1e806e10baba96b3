// Package perf defines the records the agent emits and ships to the ingestion
// backend: partial performance metric deltas, web-vital events, and the
// tagged envelopes used for custom events and errors.
package perf
