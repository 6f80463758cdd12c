package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/kpagano/fclones/internal/report"
)

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// validateGlobPatterns checks that all patterns are valid doublestar
// patterns, the same class this tool actually matches against at scan time.
func validateGlobPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return nil
}

// parseFormat accepts the CLI's "default" spelling for the text format in
// addition to report.ParseFormat's own names.
func parseFormat(s string) (report.Format, error) {
	if s == "default" || s == "" {
		return report.Text, nil
	}
	return report.ParseFormat(s)
}

// probeOutputPath fails fast if path cannot be created, per the "fail fast,
// fail early" posture: an output that will fail partway through a long scan
// is caught before any expensive I/O begins.
func probeOutputPath(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// parseModifiedBefore parses the --modified-before flag, accepting RFC3339
// timestamps as well as a bare date.
func parseModifiedBefore(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --modified-before %q: want RFC3339 or YYYY-MM-DD", s)
}
