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

// Parse reads element sets in the 3-line NORAD format (name, line 1, line 2)
// from r. Name lines are optional: a line 1 directly following a line 2 starts
// a new unnamed entry. Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)

	var (
		entries []Entry
		name    string
		line1   string
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "1 "):
			if line1 != "" {
				logger.Warn("skipping TLE entry without line 2", "line", lineNo, "name", name)
			}
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				logger.Warn("skipping TLE line 2 without line 1", "line", lineNo, "name", name)
				name = ""
				continue
			}
			entry, err := newEntry(name, line1, line)
			if err != nil {
				logger.Warn("skipping malformed TLE entry", "line", lineNo, "name", name, "error", err)
			} else {
				entries = append(entries, entry)
			}
			name, line1 = "", ""
		default:
			if line1 != "" {
				logger.Warn("skipping TLE entry without line 2", "line", lineNo, "name", name)
				line1 = ""
			}
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	return entries, nil
}

func newEntry(name, line1, line2 string) (Entry, error) {
	if len(line1) < 32 {
		return Entry{}, fmt.Errorf("line1 too short (%d chars)", len(line1))
	}

	// NORAD catalog number: line 1 columns 3-7.
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid NORAD ID %q", noradStr)
	}
	if len(line2) >= 7 {
		if id2 := strings.TrimSpace(line2[2:7]); id2 != noradStr {
			return Entry{}, fmt.Errorf("NORAD ID mismatch between lines: %q vs %q", noradStr, id2)
		}
	}

	// Epoch: line 1 columns 19-32.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Entry{}, err
	}

	if name == "" {
		name = fmt.Sprintf("NORAD %d", noradID)
	}
	return Entry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// parseEpoch converts a YYDDD.DDDDDDDD epoch to time.Time.
// Years 57-99 are 1900s, 00-56 are 2000s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch too short: %q", s)
	}

	yy, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", day)
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
