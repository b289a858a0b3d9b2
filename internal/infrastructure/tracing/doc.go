/*
Package tracing carries a trace id from the host's remote calls into the
authority's request handling.

The host's HTTP client opens a client span per call and sends its ids in
the X-Trace-ID and X-Span-ID headers. The authority's gin middleware
continues that trace, so one sync flush can be followed across both logs.

	tracer := tracing.New("authority", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "progress.batch")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Finished spans are buffered (1000) and logged by one collector goroutine;
spans submitted to a full buffer are dropped.
*/
package tracing
