// Package filelock provides an advisory, exclusive, non-blocking file lock
// used to guard files two gateway processes might otherwise write
// concurrently: the JSONL audit log and the per-server OAuth token cache.
// Lock is platform-specific; see flock_unix.go and flock_windows.go.
package filelock
