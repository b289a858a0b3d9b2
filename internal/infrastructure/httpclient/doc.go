// Package httpclient is the HTTP transport shared by every remote
// collaborator: resty over a retryablehttp transport, a token bucket limiter
// and a circuit breaker named "authority".
package httpclient
