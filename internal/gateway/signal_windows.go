//go:build windows

package gateway

import "context"

// WatchSIGHUP is a no-op on Windows, which has no SIGHUP; manual reload is
// unavailable there aside from process restart.
func WatchSIGHUP(ctx context.Context, r *Reloader) {}
