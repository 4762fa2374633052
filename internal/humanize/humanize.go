// Package humanize renders relative timestamps for the dashboard table.
//
// The buckets and wording follow the operators' locale (Turkish):
// seconds ("sn"), minutes ("dk"), hours ("saat") and days ("gün").
package humanize

import (
	"fmt"
	"time"
)

// Duration formats an elapsed duration as "N <unit> önce".
//
// Values are floored within their bucket: 125s is "2 dk önce", 7300s is
// "2 saat önce". Negative durations (clock skew) are treated as zero.
func Duration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	switch {
	case seconds < 60:
		return fmt.Sprintf("%d sn önce", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d dk önce", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%d saat önce", seconds/3600)
	default:
		return fmt.Sprintf("%d gün önce", seconds/86400)
	}
}

// Since formats the time elapsed between t and now.
func Since(now, t time.Time) string {
	return Duration(now.Sub(t))
}
