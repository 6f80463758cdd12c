package report

import (
	"bufio"
	"errors"
	"io"

	"github.com/kpagano/fclones/internal/types"
)

// ErrHeaderAlreadyRead is returned by ReadHeader on a second call.
var ErrHeaderAlreadyRead = errors.New("report: header already read")

// ErrHeaderNotRead is returned by ReadGroups called before ReadHeader.
var ErrHeaderNotRead = errors.New("report: header must be read before groups")

// Group is one parsed group of duplicate files: the claims the report made
// about a size/hash bucket, plus its member paths in on-disk order.
type Group struct {
	FileLen  int64
	FileHash types.Hash128
	Paths    []*types.Path
}

// GroupIterator yields groups one at a time without buffering the whole
// report in memory (text format) or from an already-fully-parsed report
// (JSON format).
type GroupIterator interface {
	// Next returns the next group. ok is false and err is nil at normal
	// end of input; a non-nil err always ends iteration.
	Next() (g Group, ok bool, err error)
}

// Reader parses a report previously produced by Writer. Only the text and
// JSON formats are readable: fdupes and CSV are interop-only, write-only
// shapes that drop the information (hash grouping) a reader would need to
// reconstruct groups unambiguously.
type Reader interface {
	// ReadHeader must be called exactly once, before ReadGroups.
	ReadHeader() (types.ReportHeader, error)
	// ReadGroups opens the group stream. Valid only after ReadHeader.
	ReadGroups() (GroupIterator, error)
}

type readerState int

const (
	stateFresh readerState = iota
	stateHeaderRead
	stateGroupsOpened
)

// OpenReport sniffs the format of r by peeking its first non-whitespace
// byte -- '{' means JSON, anything else is assumed to be the text format's
// leading '#' comment block -- and returns the matching Reader.
func OpenReport(r io.Reader) (Reader, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, errors.New("report: empty input")
			}
			return nil, err
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\n' || b[0] == '\r' {
			_, _ = br.Discard(1)
			continue
		}
		if b[0] == '{' {
			return newJSONReader(br), nil
		}
		return newTextReader(br), nil
	}
}
