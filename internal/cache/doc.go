// Package cache implements the disk-persisted key/value engine. Every live
// entry is exactly one file in the cache directory named
// <key>_<expiresAtMillis>[_c]; the filename is the only on-disk metadata, so
// the in-memory index is rebuilt from a directory listing on startup and kept
// authoritative while the process runs. Values pass through a pluggable codec
// (graph-aware by default) and optional gzip compression, entries expire on a
// per-entry TTL, and a sweep enforces MaxSize with least-recently-accessed
// eviction.
//
// Public operations never return errors: failures are counted, logged, and
// published on the events bus while the call returns false / a miss. Open is
// the only call that fails hard, when the cache directory is unusable.
//
// A single process is assumed to own the directory. Async variants do not
// serialize access to the same key; callers needing per-key atomicity should
// wrap calls with keylock or an equivalent.
package cache
