package pipeline

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"
)

const updateTimeLayout = "2006/01/02 15:04"

// UpdateTimestamp resolves the snapshot timestamp shown next to the written
// table: the PDF's own CreationDate when the trailer carries one, else the
// email receipt time, else now. Rendered in the report zone.
func UpdateTimestamp(content []byte, received, now time.Time, loc *time.Location) string {
	if created, ok := pdfCreationTime(content); ok {
		return created.In(loc).Format(updateTimeLayout)
	}
	if !received.IsZero() {
		return received.In(loc).Format(updateTimeLayout)
	}
	return now.In(loc).Format(updateTimeLayout)
}

func pdfCreationTime(content []byte) (time.Time, bool) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return time.Time{}, false
	}
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return time.Time{}, false
	}
	for _, key := range []string{"CreationDate", "ModDate"} {
		if t, ok := parsePDFDate(info.Key(key).RawString()); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// parsePDFDate decodes the "D:YYYYMMDDHHmmSS" trailer date format, tolerating
// a missing prefix and a truncated tail. The timezone suffix, when present,
// uses O+HH'mm' notation.
func parsePDFDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "D:")
	if len(s) < 8 {
		return time.Time{}, false
	}

	digits := s
	for i, r := range digits {
		if r < '0' || r > '9' {
			digits = digits[:i]
			break
		}
	}
	if len(digits) < 8 {
		return time.Time{}, false
	}

	atoi := func(part string, fallback int) int {
		v, err := strconv.Atoi(part)
		if err != nil {
			return fallback
		}
		return v
	}

	year := atoi(digits[0:4], 0)
	month := atoi(digits[4:6], 1)
	day := atoi(digits[6:8], 1)
	hour, minute, sec := 0, 0, 0
	if len(digits) >= 10 {
		hour = atoi(digits[8:10], 0)
	}
	if len(digits) >= 12 {
		minute = atoi(digits[10:12], 0)
	}
	if len(digits) >= 14 {
		sec = atoi(digits[12:14], 0)
	}
	if year == 0 {
		return time.Time{}, false
	}

	loc := time.UTC
	if off, ok := parsePDFOffset(s[len(digits):]); ok {
		loc = time.FixedZone("pdf", off)
	}
	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc), true
}

func parsePDFOffset(suffix string) (int, bool) {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" || suffix == "Z" {
		return 0, suffix == "Z"
	}
	sign := 1
	switch suffix[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}
	parts := strings.Split(strings.Trim(suffix[1:], "'"), "'")
	if len(parts) == 0 || parts[0] == "" {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes := 0
	if len(parts) > 1 && parts[1] != "" {
		if minutes, err = strconv.Atoi(parts[1]); err != nil {
			return 0, false
		}
	}
	return sign * (hours*3600 + minutes*60), true
}
