// Package script implements surfaces for web content: an entry document is
// fetched over HTTP (or read from a file URL), its classic scripts are
// extracted and evaluated in a goja VM with host shims installed.
//
// The sandbox exposes a minimal window: ReactNativeWebView.postMessage for
// frames to the host, ARCADIA_CONFIG with the host configuration, event
// listeners (host commands arrive as "ArcadiaBridge" events whose detail is
// the envelope), timers and console. Module loading, process access and
// network APIs are not available.
//
// Evaluation is bounded: any single script, listener dispatch or timer
// callback that runs past the configured timeout kills the VM, and the
// surface reports ErrTerminated.
package script
