// Package api is the typed HTTP client for the Cartographer
// scheduled-broadcast backend. All calls are rate limited; idempotent ones
// retry transient failures with a short backoff.
package api
