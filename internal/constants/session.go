package constants

import "time"

// Session timing defaults. The idle timeout and sweep interval can be
// overridden via config; the clamps keep operator overrides sane.
const (
	DefaultSessionIdleTimeout = 120 * time.Minute
	DefaultSessionLifetime    = 8 * time.Hour
	DefaultSweepInterval      = 5 * time.Minute

	MinSessionIdleTimeout = 5 * time.Minute
	MaxSessionLifetime    = 7 * 24 * time.Hour
)

// UserRoomPrefix prefixes the synthetic per-user room a session is
// bound to between login and ticket join.
const UserRoomPrefix = "user:"
