package common

import "time"

// Kind discriminators carried in tokens and used as route prefixes.
const (
	KindBuyer    = "buyer"
	KindReseller = "reseller"
	KindAdmin    = "admin"
)

// Fixed security parameters observed in production. Config may override the
// throttle values; the reset token TTL is not configurable.
const (
	DefaultLockThreshold = 5
	DefaultLockDuration  = 2 * time.Hour
	ResetTokenTTL        = time.Hour

	// ResetTokenBytes is the raw reset secret size, 256 bits of entropy.
	ResetTokenBytes = 32
)

// AuthorizationHeaderPrefix precedes bearer tokens in the Authorization header.
const AuthorizationHeaderPrefix = "Bearer "
