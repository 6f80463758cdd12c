package report

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/kpagano/fclones/internal/types"
)

var (
	versionRe   = regexp.MustCompile(`^# Report by fclones ([0-9]+\.[0-9]+\.[0-9]+(-\S+)?|dev)`)
	timestampRe = regexp.MustCompile(`^# Timestamp: (.*)`)
	commandRe   = regexp.MustCompile(`^# Command: (.*)`)
	groupCountRe = regexp.MustCompile(`^# Found ([0-9]+) file groups?`)
	statsRe     = regexp.MustCompile(`^# ([0-9]+) B \([^)]*\) in ([0-9]+) redundant files can be removed`)
	groupHeaderRe = regexp.MustCompile(`^([a-f0-9]{32}), ([0-9]+) B [^*]* \* ([0-9]+):`)
)

type textReader struct {
	r     *bufio.Reader
	state readerState
}

func newTextReader(r *bufio.Reader) *textReader {
	return &textReader{r: r}
}

func (t *textReader) readLine() (string, error) {
	line, err := t.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

func (t *textReader) extract(re *regexp.Regexp, what string) (string, error) {
	line, err := t.readLine()
	if err != nil {
		return "", fmt.Errorf("report: malformed header: missing %s: %w", what, err)
	}
	m := re.FindStringSubmatch(strings.TrimRight(line, "\n\r"))
	if m == nil {
		return "", fmt.Errorf("report: malformed header: missing %s", what)
	}
	return m[1], nil
}

func (t *textReader) ReadHeader() (types.ReportHeader, error) {
	if t.state != stateFresh {
		return types.ReportHeader{}, ErrHeaderAlreadyRead
	}
	version, err := t.extract(versionRe, "fclones version")
	if err != nil {
		return types.ReportHeader{}, err
	}
	tsStr, err := t.extract(timestampRe, "timestamp")
	if err != nil {
		return types.ReportHeader{}, err
	}
	ts, err := parseTimestamp(tsStr)
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: bad timestamp: %w", err)
	}
	cmdLine, err := t.extract(commandRe, "command")
	if err != nil {
		return types.ReportHeader{}, err
	}
	command, err := shellwords.Parse(cmdLine)
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: bad command line: %w", err)
	}
	groupCountStr, err := t.extract(groupCountRe, "group count")
	if err != nil {
		return types.ReportHeader{}, err
	}
	groupCount, err := strconv.Atoi(groupCountStr)
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: bad group count: %w", err)
	}
	line, err := t.readLine()
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: missing statistics line: %w", err)
	}
	m := statsRe.FindStringSubmatch(strings.TrimRight(line, "\n\r"))
	if m == nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: statistics line %q", line)
	}
	size, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: bad redundant size: %w", err)
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return types.ReportHeader{}, fmt.Errorf("report: malformed header: bad redundant count: %w", err)
	}

	t.state = stateHeaderRead
	return types.ReportHeader{
		Version:   version,
		Timestamp: ts,
		Command:   command,
		Stats: &types.Stats{
			GroupCount:         groupCount,
			RedundantFileCount: count,
			RedundantFileSize:  size,
		},
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// ReadGroups opens the group stream. The header must have been read first.
func (t *textReader) ReadGroups() (GroupIterator, error) {
	if t.state == stateFresh {
		return nil, ErrHeaderNotRead
	}
	if t.state == stateGroupsOpened {
		return nil, errors.New("report: groups already opened")
	}
	t.state = stateGroupsOpened
	return &textGroupIterator{r: t.r}, nil
}

type textGroupIterator struct {
	r       *bufio.Reader
	stopped bool
}

// Next reads one group header line and its count member path lines. A
// commented or blank line is never expected here -- the header block is
// consumed by ReadHeader -- so any '#'-prefixed line would simply fail to
// match groupHeaderRe and end iteration with an error, exactly like a
// genuinely malformed report.
func (it *textGroupIterator) Next() (Group, bool, error) {
	if it.stopped {
		return Group{}, false, nil
	}
	line, err := it.r.ReadString('\n')
	trimmed := strings.TrimRight(line, "\n\r")
	if trimmed == "" {
		if err != nil {
			it.stopped = true
			return Group{}, false, nil
		}
		return it.Next()
	}

	m := groupHeaderRe.FindStringSubmatch(trimmed)
	if m == nil {
		it.stopped = true
		return Group{}, false, fmt.Errorf("report: malformed group header: %q", trimmed)
	}
	hash, err := types.ParseHash128(m[1])
	if err != nil {
		it.stopped = true
		return Group{}, false, err
	}
	size, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		it.stopped = true
		return Group{}, false, fmt.Errorf("report: malformed group size: %w", err)
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		it.stopped = true
		return Group{}, false, fmt.Errorf("report: malformed group count: %w", err)
	}

	paths := make([]*types.Path, 0, count)
	for i := 0; i < count; i++ {
		pathLine, err := it.r.ReadString('\n')
		if err != nil && pathLine == "" {
			it.stopped = true
			return Group{}, false, fmt.Errorf("report: unexpected end of file reading group paths: %w", err)
		}
		if !strings.HasPrefix(pathLine, "    ") || strings.TrimSpace(pathLine) == "" {
			it.stopped = true
			return Group{}, false, fmt.Errorf("report: expected indented path, got %q", pathLine)
		}
		paths = append(paths, types.Intern(strings.TrimSpace(pathLine)))
	}

	return Group{FileLen: size, FileHash: hash, Paths: paths}, true, nil
}
