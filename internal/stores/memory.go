package stores

import "time"

// sweepThreshold is the map size at which memory stores drop expired
// entries on write.
const sweepThreshold = 1024

// savedAt recovers the caller's clock at save time from a record's expiry.
func savedAt(expiresAtMs int64, ttl time.Duration) time.Time {
	return time.UnixMilli(expiresAtMs).Add(-ttl)
}
