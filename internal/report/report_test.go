package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kpagano/fclones/internal/types"
)

func sampleGroups(t *testing.T) []types.FileGroup {
	t.Helper()
	keyFunc := func(f *types.FileInfo) string { return f.Path.String() }
	g1 := types.NewFileGroup(8, mustHash(t, "5649a555c131508c4a757d9e14c4aea6"), []*types.FileInfo{
		{Path: types.Intern("/a/one"), Size: 8},
		{Path: types.Intern("/a/two"), Size: 8},
	}, keyFunc)
	g2 := types.NewFileGroup(4, mustHash(t, "f79ce189d76620fd921986943087dc3a"), []*types.FileInfo{
		{Path: types.Intern("/b/one"), Size: 4},
		{Path: types.Intern("/b/two"), Size: 4},
		{Path: types.Intern("/b/three"), Size: 4},
	}, keyFunc)
	return []types.FileGroup{g1, g2}
}

func mustHash(t *testing.T, s string) types.Hash128 {
	t.Helper()
	h, err := types.ParseHash128(s)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func sampleHeader() types.ReportHeader {
	return types.ReportHeader{
		Version:   "0.1.0",
		Timestamp: time.Date(2021, 5, 3, 13, 22, 51, 0, time.UTC),
		Command:   []string{"fclones", "group", ".", "-o", "report with spaces.txt"},
		Stats:     &types.Stats{GroupCount: 2, RedundantFileCount: 3, RedundantFileSize: 12},
	}
}

// TestTextRoundTrip implements scenario S3: writing then reading back a text
// report preserves header fields and group membership.
func TestTextRoundTrip(t *testing.T) {
	groups := sampleGroups(t)
	header := sampleHeader()

	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(Text, header, groups); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rd, err := OpenReport(&buf)
	if err != nil {
		t.Fatalf("OpenReport: %v", err)
	}
	gotHeader, err := rd.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if gotHeader.Version != header.Version {
		t.Errorf("version = %q, want %q", gotHeader.Version, header.Version)
	}
	if !gotHeader.Timestamp.Equal(header.Timestamp) {
		t.Errorf("timestamp = %v, want %v", gotHeader.Timestamp, header.Timestamp)
	}
	if strings.Join(gotHeader.Command, " ") != strings.Join(header.Command, " ") {
		// space-containing arg must survive the quote/unquote round trip intact
		if len(gotHeader.Command) != len(header.Command) {
			t.Fatalf("command = %v, want %v", gotHeader.Command, header.Command)
		}
		for i := range header.Command {
			if gotHeader.Command[i] != header.Command[i] {
				t.Errorf("command[%d] = %q, want %q", i, gotHeader.Command[i], header.Command[i])
			}
		}
	}
	if gotHeader.Stats.GroupCount != 2 {
		t.Errorf("group count = %d, want 2", gotHeader.Stats.GroupCount)
	}

	it, err := rd.ReadGroups()
	if err != nil {
		t.Fatalf("ReadGroups: %v", err)
	}
	var got []Group
	for {
		g, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, g)
	}
	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}
	if len(got[0].Paths) != 2 || len(got[1].Paths) != 3 {
		t.Errorf("group sizes = %d, %d, want 2, 3", len(got[0].Paths), len(got[1].Paths))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	groups := sampleGroups(t)
	header := sampleHeader()

	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(JSON, header, groups); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatal("writeJSON produced invalid JSON")
	}

	rd, err := OpenReport(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReport: %v", err)
	}
	gotHeader, err := rd.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if gotHeader.Version != "0.1.0" {
		t.Errorf("version = %q", gotHeader.Version)
	}

	it, err := rd.ReadGroups()
	if err != nil {
		t.Fatalf("ReadGroups: %v", err)
	}
	count := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("groups = %d, want 2", count)
	}
}

// TestAutodetect checks that the format is recovered from content, not a
// file extension.
func TestAutodetect(t *testing.T) {
	groups := sampleGroups(t)
	header := sampleHeader()

	var textBuf, jsonBuf bytes.Buffer
	_ = NewWriter(&textBuf).Write(Text, header, groups)
	_ = NewWriter(&jsonBuf).Write(JSON, header, groups)

	if _, err := OpenReport(bytes.NewReader(textBuf.Bytes())); err != nil {
		t.Errorf("OpenReport(text) = %v", err)
	}
	if rd, err := OpenReport(bytes.NewReader(jsonBuf.Bytes())); err != nil {
		t.Errorf("OpenReport(json) = %v", err)
	} else if h, err := rd.ReadHeader(); err != nil || h.Version == "" {
		t.Errorf("autodetected JSON reader failed to parse header: %v", err)
	}
}

func TestReadHeaderTwiceFails(t *testing.T) {
	var buf bytes.Buffer
	_ = NewWriter(&buf).Write(Text, sampleHeader(), sampleGroups(t))

	rd, err := OpenReport(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadHeader(); err != ErrHeaderAlreadyRead {
		t.Errorf("second ReadHeader = %v, want ErrHeaderAlreadyRead", err)
	}
}

func TestReadGroupsBeforeHeaderFails(t *testing.T) {
	var buf bytes.Buffer
	_ = NewWriter(&buf).Write(Text, sampleHeader(), sampleGroups(t))

	rd, err := OpenReport(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadGroups(); err != ErrHeaderNotRead {
		t.Errorf("ReadGroups before header = %v, want ErrHeaderNotRead", err)
	}
}

func TestMalformedGroupHeaderErrors(t *testing.T) {
	text := "# Report by fclones 0.1.0\n" +
		"# Timestamp: Mon, 03 May 2021 13:22:51 +0000\n" +
		"# Command: fclones group .\n" +
		"# Found 1 file groups\n" +
		"# 4 B (4 B) in 1 redundant files can be removed\n" +
		"not-a-valid-group-header\n"

	rd, err := OpenReport(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	it, err := rd.ReadGroups()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := it.Next(); err == nil {
		t.Error("expected error for malformed group header")
	}
}

// TestFdupesFormat implements scenario S7: fdupes output has no header and
// separates groups with a blank line.
func TestFdupesFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(Fdupes, sampleHeader(), sampleGroups(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "#") {
		t.Error("fdupes output should contain no header comments")
	}
	blocks := strings.Split(strings.TrimRight(out, "\n"), "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blank-line-separated blocks, got %d", len(blocks))
	}
}

// TestCSVFormat implements scenario S7: CSV rows carry size, hash, count,
// then one column per member path.
func TestCSVFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(CSV, sampleHeader(), sampleGroups(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "size,hash,count,files" {
		t.Errorf("header row = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "4,f79ce189d76620fd921986943087dc3a,3,") {
		t.Errorf("second row = %q", lines[2])
	}
}
