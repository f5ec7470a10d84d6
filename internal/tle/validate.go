package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// numericField is one column range the SGP4 library parses, expressed as the
// exact text it hands to strconv.
type numericField struct {
	name string
	text func(line1, line2 string) string
	int  bool
}

// squeeze drops at most two spaces, matching the library's own cleanup.
func squeeze(s string) string { return strings.Replace(s, " ", "", 2) }

// exponent rebuilds the implied-decimal "±NNNNN±E" fields of line 1.
func exponent(line string, lo int) string {
	return squeeze(line[lo:lo+1] + "." + line[lo+1:lo+6] + "e" + line[lo+6:lo+8])
}

var numericFields = []numericField{
	{name: "epoch year", text: func(l1, _ string) string { return l1[18:20] }, int: true},
	{name: "epoch day", text: func(l1, _ string) string { return l1[20:32] }},
	{name: "mean motion derivative", text: func(l1, _ string) string { return squeeze(l1[33:43]) }},
	{name: "mean motion second derivative", text: func(l1, _ string) string { return exponent(l1, 44) }},
	{name: "bstar", text: func(l1, _ string) string { return exponent(l1, 53) }},
	{name: "inclination", text: func(_, l2 string) string { return squeeze(l2[8:16]) }},
	{name: "RAAN", text: func(_, l2 string) string { return squeeze(l2[17:25]) }},
	{name: "eccentricity", text: func(_, l2 string) string { return "." + l2[26:33] }},
	{name: "argument of perigee", text: func(_, l2 string) string { return squeeze(l2[34:42]) }},
	{name: "mean anomaly", text: func(_, l2 string) string { return squeeze(l2[43:51]) }},
	{name: "mean motion", text: func(_, l2 string) string { return squeeze(l2[52:63]) }},
}

// ValidateLines performs the format checks applied at the ingestion
// boundary: both lines are 69 characters, carry their line numbers, name
// the same satellite, and every numeric column the SGP4 library reads
// parses to a finite value. That library terminates the process on
// malformed input, so nothing reaches it without passing this check.
func ValidateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}

	id1, err := NORADID(line1)
	if err != nil {
		return err
	}
	id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7]))
	if err != nil {
		return fmt.Errorf("invalid NORAD ID on line2: %w", err)
	}
	if id1 != id2 {
		return fmt.Errorf("NORAD ID mismatch: line1 %d, line2 %d", id1, id2)
	}

	for _, f := range numericFields {
		text := f.text(line1, line2)
		if f.int {
			if _, err := strconv.ParseInt(text, 10, 0); err != nil {
				return fmt.Errorf("invalid %s %q", f.name, text)
			}
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s %q", f.name, text)
		}
	}
	if mm, _ := strconv.ParseFloat(squeeze(line2[52:63]), 64); mm <= 0 {
		return fmt.Errorf("mean motion %g must be positive", mm)
	}
	return nil
}

// NORADID extracts the catalogue number from columns 3-7 of line 1.
func NORADID(line1 string) (int, error) {
	if len(line1) < 7 {
		return 0, fmt.Errorf("line1 too short for NORAD ID")
	}
	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return 0, fmt.Errorf("invalid NORAD ID on line1: %w", err)
	}
	return id, nil
}
