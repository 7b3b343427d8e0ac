package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders a duration as HH:MM:SS.mmm
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// ParseTimestamp parses HH:MM:SS.mmm, MM:SS or SS.mmm. The SubRip comma
// separator (HH:MM:SS,mmm) is accepted as well.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	norm := strings.Replace(s, ",", ".", 1)

	parts := strings.Split(norm, ":")
	if len(parts) > 3 || norm == "" {
		return 0, fmt.Errorf("invalid timestamp format: %s", s)
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		total = total*60 + v
	}

	return time.Duration(total * float64(time.Second)).Round(time.Millisecond), nil
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30/1")
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
