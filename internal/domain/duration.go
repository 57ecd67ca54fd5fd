package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatDuration renders a duration as MM:SS. Numeric input (seconds, with
// or without a fractional part) is converted; input already in MM:SS form is
// returned unchanged, which makes the function idempotent. Anything
// unparseable collapses to "00:00".
func FormatDuration(raw string) string {
	if strings.Contains(raw, ":") {
		return raw
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs < 0 {
		return "00:00"
	}
	return FormatSeconds(int(secs))
}

// FormatSeconds renders a second count as MM:SS.
func FormatSeconds(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
