// Package llm holds the behavior every chat provider shares: retries with backoff,
// per-attempt timeouts, client-side rate limiting, error classification, message
// sanitation, context truncation and health state.
package llm
