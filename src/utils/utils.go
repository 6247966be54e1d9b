package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	colonMAC     = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
	hyphenMAC    = regexp.MustCompile(`^([0-9A-F]{2}-){5}[0-9A-F]{2}$`)
	compactMAC   = regexp.MustCompile(`^[0-9A-F]{12}$`)
	hexLetterMAC = regexp.MustCompile(`[A-F]`)
)

// BytesToHumanReadable converts a byte count to a human-readable string (KB, MB, GB).
func BytesToHumanReadable(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// MillisecondsToHumanReadable renders a time allotment, e.g. "1h2m3s".
func MillisecondsToHumanReadable(ms uint64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

// ValidateMACAddress checks if a string is a valid MAC address.
// Accepts XX:XX:XX:XX:XX:XX, XX-XX-XX-XX-XX-XX and XXXXXXXXXXXX.
func ValidateMACAddress(mac string) bool {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return false
	}

	if colonMAC.MatchString(mac) || hyphenMAC.MatchString(mac) {
		return true
	}

	// Without separators at least one hex letter is required so a plain
	// number is not mistaken for a MAC.
	return compactMAC.MatchString(mac) && hexLetterMAC.MatchString(mac)
}

// NormalizeMintURL strips whitespace and trailing slashes so the same mint
// advertised with and without a slash maps to one wallet.
func NormalizeMintURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// ShortKey abbreviates a hex pubkey for logs.
func ShortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:8] + "…" + key[len(key)-4:]
}
