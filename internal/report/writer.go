package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/kpagano/fclones/internal/types"
)

// Writer formats a ReportHeader and a sequence of FileGroup values to an
// underlying stream in one of the four supported formats.
type Writer struct {
	out io.Writer
}

// NewWriter wraps out. out is never closed by Writer.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Write dispatches to the format-specific writer. groups must already be in
// the order the caller wants them persisted; Write does not re-sort.
func (w *Writer) Write(format Format, header types.ReportHeader, groups []types.FileGroup) error {
	switch format {
	case Text, "":
		return w.writeText(header, groups)
	case Fdupes:
		return w.writeFdupes(groups)
	case CSV:
		return w.writeCSV(groups)
	case JSON:
		return w.writeJSON(header, groups)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func (w *Writer) headerLine(line string) error {
	_, err := fmt.Fprintf(w.out, "# %s\n", line)
	return err
}

// writeText is the default, human-readable format: a commented header block
// followed by one group header line and its indented member paths per
// group.
//
//	# Report by fclones 0.1.0
//	# Timestamp: Mon, 03 May 2021 13:22:51 +0000
//	# Command: fclones group . -o report.txt
//	# Found 1 file groups
//	# 8 B (8 B) in 1 redundant files can be removed
//	5cf...32, 8 B (8 B) * 2:
//	    /a
//	    /b
func (w *Writer) writeText(header types.ReportHeader, groups []types.FileGroup) error {
	if err := w.headerLine(fmt.Sprintf("Report by fclones %s", header.Version)); err != nil {
		return err
	}
	if err := w.headerLine(fmt.Sprintf("Timestamp: %s", header.Timestamp.Format(TimestampLayout))); err != nil {
		return err
	}
	if err := w.headerLine(fmt.Sprintf("Command: %s", joinShellWords(header.Command))); err != nil {
		return err
	}
	if header.Stats != nil {
		if err := w.headerLine(fmt.Sprintf("Found %d file groups", header.Stats.GroupCount)); err != nil {
			return err
		}
		size := header.Stats.RedundantFileSize
		if err := w.headerLine(fmt.Sprintf("%d B (%s) in %d redundant files can be removed",
			size, humanize.Bytes(uint64(size)), header.Stats.RedundantFileCount)); err != nil {
			return err
		}
	}

	for _, g := range groups {
		if _, err := fmt.Fprintf(w.out, "%s, %d B (%s) * %d:\n",
			g.FileHash.Hex(), g.FileLen, humanize.Bytes(uint64(g.FileLen)), g.Files.Len()); err != nil {
			return err
		}
		for _, f := range g.Files.Items() {
			if _, err := fmt.Fprintf(w.out, "    %s\n", f.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFdupes mimics the classic fdupes tool: no header at all, one path per
// line, groups separated by a single blank line.
func (w *Writer) writeFdupes(groups []types.FileGroup) error {
	for _, g := range groups {
		for _, f := range g.Files.Items() {
			if _, err := fmt.Fprintf(w.out, "%s\n", f.Path); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w.out); err != nil {
			return err
		}
	}
	return nil
}

// writeCSV emits one row per group: size, hash, count, then one column per
// member path. Row width is therefore dynamic, which encoding/csv tolerates
// fine as long as every row is written through the same *csv.Writer.
func (w *Writer) writeCSV(groups []types.FileGroup) error {
	cw := csv.NewWriter(w.out)
	if err := cw.Write([]string{"size", "hash", "count", "files"}); err != nil {
		return err
	}
	for _, g := range groups {
		record := []string{
			strconv.FormatInt(g.FileLen, 10),
			g.FileHash.Hex(),
			strconv.Itoa(g.Files.Len()),
		}
		for _, f := range g.Files.Items() {
			record = append(record, f.Path.String())
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonGroup is FileGroup's wire representation: Sorted's internal key
// function isn't meaningful to a reader, so only the ordered paths survive.
type jsonGroup struct {
	FileLen  int64    `json:"file_len"`
	FileHash string   `json:"file_hash"`
	Files    []string `json:"files"`
}

type jsonReport struct {
	Header types.ReportHeader `json:"header"`
	Groups []jsonGroup        `json:"groups"`
}

func (w *Writer) writeJSON(header types.ReportHeader, groups []types.FileGroup) error {
	out := jsonReport{Header: header, Groups: make([]jsonGroup, len(groups))}
	for i, g := range groups {
		paths := make([]string, 0, g.Files.Len())
		for _, f := range g.Files.Items() {
			paths = append(paths, f.Path.String())
		}
		out.Groups[i] = jsonGroup{FileLen: g.FileLen, FileHash: g.FileHash.Hex(), Files: paths}
	}
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
