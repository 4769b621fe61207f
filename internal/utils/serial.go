package utils

import "strings"

// NormalizeSerial trims surrounding whitespace from a serial number.
func NormalizeSerial(raw string) string {
	return strings.TrimSpace(raw)
}

// SplitSerials splits comma separated serial text into trimmed tokens,
// dropping empty ones. "A1, A2,,A3 " yields [A1 A2 A3].
func SplitSerials(raw string) []string {
	parts := strings.Split(raw, ",")
	serials := make([]string, 0, len(parts))
	for _, p := range parts {
		if sn := NormalizeSerial(p); sn != "" {
			serials = append(serials, sn)
		}
	}
	return serials
}

// Truncate cuts s to max runes and appends an ellipsis when it was longer.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
