package hoodie

import (
	"fmt"
	"time"
)

// FormatRate formats a per-second rate for log lines.
func FormatRate(count int64, duration time.Duration) string {
	if duration == 0 {
		return "∞"
	}
	rate := float64(count) / duration.Seconds()
	return fmt.Sprintf("%.1f", rate)
}
