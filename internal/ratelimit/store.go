package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store counts requests per key in fixed windows. Implementations must make
// Increment atomic with respect to concurrent callers on the same key.
type Store interface {
	// Increment adds one hit to the window containing now and returns the
	// count after the increment.
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// windowKey scopes key to one fixed window so expired windows never need resetting
func windowKey(key string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, windowStart.Unix())
}
