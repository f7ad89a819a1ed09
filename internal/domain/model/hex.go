package model

import (
	"regexp"
	"strings"
)

var hexPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// NormalizeHex trims hex and adds the leading '#' when it is missing.
func NormalizeHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		return "#" + hex
	}
	return hex
}

// ValidHex reports whether hex is "#RGB" or "#RRGGBB" after normalization.
func ValidHex(hex string) bool {
	return hexPattern.MatchString(NormalizeHex(hex))
}
