// Package bridge is the host end of the host-sandbox message channel.
//
// Each attached card has an Endpoint that accepts encoded host commands.
// Frames coming back from a surface are decoded by Receive and dispatched to
// the lifecycle, telemetry and haptics handlers. Untrusted input is never
// allowed to fail the host: malformed frames and frames from detached cards
// are counted and dropped.
//
// Bridge methods are safe for concurrent use, but the host calls them from
// its event loop so that per-card ordering is preserved.
package bridge
