// Package dedupe turns a set of duplicate-file groups into a plan of
// file-level operations (remove a redundant copy, replace it with a
// hardlink or symlink, or move it aside) and applies that plan, either as a
// dry-run preview or for real.
package dedupe

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kpagano/fclones/internal/types"
)

// OperationKind selects what happens to a redundant file.
type OperationKind int

const (
	Remove OperationKind = iota
	HardLink
	SymLink
	Move
)

func (k OperationKind) String() string {
	switch k {
	case Remove:
		return "remove"
	case HardLink:
		return "hardlink"
	case SymLink:
		return "symlink"
	case Move:
		return "move"
	default:
		return "unknown"
	}
}

// Operation is one unit of work against a single redundant file. Keep is
// the survivor's path, set by the planner for every kind; HardLink and
// SymLink use it as the link source.
type Operation struct {
	Kind   OperationKind
	Keep   *types.Path
	Target *types.Path
	Size   int64
}

// Plan is the full set of operations a dedupe run will perform, plus the
// totals used for the dry-run summary line.
type Plan struct {
	Operations     []Operation
	FileCount      int
	ReclaimedBytes int64
	MoveTarget     string
}

func (p *Plan) add(op Operation) {
	p.Operations = append(p.Operations, op)
	p.FileCount++
	p.ReclaimedBytes += op.Size
}

// Script renders the plan as a shell-compatible preview, one command per
// operation, the form a dry run writes so it can be reviewed or replayed by
// hand.
func (p *Plan) Script() string {
	var b strings.Builder
	for _, op := range p.Operations {
		target := escapePath(op.Target)
		switch op.Kind {
		case Remove:
			fmt.Fprintf(&b, "unlink %s\n", target)
		case HardLink:
			fmt.Fprintf(&b, "ln %s %s\n", escapePath(op.Keep), target)
		case SymLink:
			fmt.Fprintf(&b, "ln -s %s %s\n", escapePath(op.Keep), target)
		case Move:
			fmt.Fprintf(&b, "mv %s %s/\n", target, escapeShellArg(p.MoveTarget))
		}
	}
	return b.String()
}

// Result describes the outcome of applying one Operation.
type Result struct {
	Op      Operation
	Skipped bool
	Err     error
}

func (r Result) String() string {
	target := escapePath(r.Op.Target)
	if r.Skipped {
		return fmt.Sprintf("skipped %s: %v", target, r.Err)
	}
	switch r.Op.Kind {
	case Remove:
		return fmt.Sprintf("removed %s", target)
	case HardLink:
		return fmt.Sprintf("replaced %s with hardlink to %s", target, escapePath(r.Op.Keep))
	case SymLink:
		return fmt.Sprintf("replaced %s with symlink to %s", target, escapePath(r.Op.Keep))
	case Move:
		return fmt.Sprintf("moved %s aside", target)
	default:
		return fmt.Sprintf("processed %s", target)
	}
}

// Summary aggregates the outcome of an Execute call, live or dry-run.
type Summary struct {
	DryRun         bool
	FilesProcessed int
	BytesReclaimed int64
	Errors         int
}

// String renders the dry-run summary line in the exact wording the tool has
// always used: "would process N files and reclaim M bytes". Live summaries
// report what was actually done instead.
func (s *Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("would process %d files and reclaim %d bytes (%s)",
			s.FilesProcessed, s.BytesReclaimed, humanize.IBytes(uint64(s.BytesReclaimed)))
	}
	return fmt.Sprintf("processed %d files, reclaimed %d bytes (%s), %d errors",
		s.FilesProcessed, s.BytesReclaimed, humanize.IBytes(uint64(s.BytesReclaimed)), s.Errors)
}

// escapePath makes a path safe to print on one terminal line.
var pathEscaper = strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`)

func escapePath(p *types.Path) string {
	return pathEscaper.Replace(p.String())
}

func escapeShellArg(s string) string {
	return pathEscaper.Replace(s)
}
