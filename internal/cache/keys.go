package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ProgressKey(jobID uuid.UUID) string {
	return fmt.Sprintf("finsight:progress:%s", jobID)
}

// RateLimitKey names the request counter of one API key for the window that
// starts at windowStart.
func RateLimitKey(keyPrefix string, windowStart time.Time) string {
	return fmt.Sprintf("finsight:ratelimit:%s:%d", keyPrefix, windowStart.Unix())
}

func StatsKey() string {
	return "finsight:stats"
}
