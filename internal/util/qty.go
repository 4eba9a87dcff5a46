package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// FormatQuantity renders a quantity cell as a thousands-separated integer.
// Values that do not parse as numeric pass through unchanged; a formatting
// glitch must never drop a row.
func FormatQuantity(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	numeric := nonNumeric.ReplaceAllString(trimmed, "")
	parsed, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return value
	}
	return humanize.Comma(int64(math.Round(parsed)))
}
