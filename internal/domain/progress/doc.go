// Package progress keeps per-content play progress offline-first.
//
// Every session is applied to the local record and appended to a durable
// queue in one store operation. Flush sends the queue to the remote
// authority as a grouped batch and drains it only on full acceptance, so a
// failed or partial sync never loses a session. Load merges the remote copy
// with maximums, never sums, since both sides may have counted the same
// sessions.
package progress
