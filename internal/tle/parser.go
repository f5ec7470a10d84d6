package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Parse reads the 3-line catalogue format (name, line 1, line 2) from r.
// Entries that fail ValidateLines or carry an unreadable epoch are skipped
// with a warning, so everything returned is safe to hand to SGP4.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		// Resynchronise one line at a time until a name/1/2 triplet lines up.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}
		i += 3

		if err := ValidateLines(line1, line2); err != nil {
			logger.Warn("skipping invalid TLE entry", "name", name, "error", err)
			continue
		}
		noradID, _ := NORADID(line1)

		epochStr := strings.TrimSpace(line1[18:32])
		epoch, err := parseEpoch(epochStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "epoch_str", epochStr, "norad_id", noradID, "error", err)
			continue
		}

		entries = append(entries, TLEEntry{
			NORADID: noradID,
			Name:    strings.TrimSpace(name),
			Epoch:   epoch,
			Line1:   line1,
			Line2:   line2,
		})
	}

	return entries, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}

	// dayOfYear is 1-based: day 1.0 is Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
