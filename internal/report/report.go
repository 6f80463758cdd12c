// Package report formats grouped duplicate-file results for output and
// parses them back for a later dedupe run. Four formats are supported: a
// human-readable text format (the default) and JSON, the two with a full
// read/write round trip, and two write-only formats for interop with other
// tools: fdupes-compatible and CSV.
package report

import (
	"fmt"
	"time"

	"github.com/kpagano/fclones/internal/types"
)

// Format selects the report's on-disk shape.
type Format string

const (
	Text   Format = "text"
	JSON   Format = "json"
	Fdupes Format = "fdupes"
	CSV    Format = "csv"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case Text, JSON, Fdupes, CSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// TimestampLayout is the layout used for the text report's header timestamp
// line, chosen to match the RFC-1123-with-numeric-zone rendering every
// fclones-compatible reader expects.
const TimestampLayout = time.RFC1123Z

// Version is reported in every header's "Report by fclones VERSION" line.
// Overridden at link time in release builds; a development default here
// keeps the package self-contained.
var Version = "dev"

// groupHeader is the parsed form of a text report's per-group header line.
// Neither the writer nor the reader uses it; both work with the fields of
// FileGroup and Group directly.
type groupHeader struct {
	hash  types.Hash128
	size  int64
	count int
}

// BuildHeader assembles a ReportHeader from the command line that produced
// it and the groups it describes.
func BuildHeader(command []string, groups []types.FileGroup) types.ReportHeader {
	stats := &types.Stats{GroupCount: len(groups)}
	for _, g := range groups {
		stats.RedundantFileCount += g.RedundantCount()
		stats.RedundantFileSize += g.ReclaimableBytes()
	}
	return types.ReportHeader{
		Version:   Version,
		Timestamp: stamp(),
		Command:   command,
		Stats:     stats,
	}
}

// stamp is split out so tests can override report generation without
// depending on wall-clock time indirectly through BuildHeader.
var stamp = time.Now
