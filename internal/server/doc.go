// Package server hosts the Fiber HTTP surface over a disk cache engine: the
// request middleware chain (recover, request id, access log) and the
// /cache/:key routes whose mutating handlers are serialized per key.
// Diagnostics and batch endpoints live under /-/ and are registered by the
// routes subpackage so the core router keeps a narrow set of exports.
package server
