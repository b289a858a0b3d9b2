// Package host is the composition root of the feed host.
//
// A Context holds the process-wide dependencies (config, logger, metrics,
// event loop, local store, remote clients, sync engine). A Host builds the
// surface registry, bridge, lifecycle supervisor and telemetry ingester on
// top of it and drives them from one event loop.
package host
