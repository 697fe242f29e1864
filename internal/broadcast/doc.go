// Package broadcast sends one message to a batch of recipients.
//
// Orchestrator.Run is the synchronous entry point: it walks the recipients in
// order, paces sends through a RateLimiter, applies the window fallback, and
// writes one delivery log row per attempt. Service wraps it in an async job
// queue with a bounded worker pool and in-memory job status.
package broadcast
