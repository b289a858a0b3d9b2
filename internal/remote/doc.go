// Package remote implements the host's clients for the remote authority:
// progress reads and batch saves, analytics submission and the feed
// listing. All calls go through httpclient, so they share its rate limiter
// and circuit breaker.
package remote
