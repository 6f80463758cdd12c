package dedupe

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/report"
	"github.com/kpagano/fclones/internal/types"
)

// PlannerOptions configures how a report's groups are turned into an
// execution Plan.
type PlannerOptions struct {
	Kind OperationKind

	// KeepPriority is a list of path prefixes; the first file in a group
	// matching a prefix (searched in order) is kept. Falls back to
	// highest-nlink-then-lexicographically-first when nothing matches.
	KeepPriority []string

	// RfOver is the minimum number of redundant copies a group must still
	// have, re-checked at plan time because files may have disappeared or
	// been modified since the report was produced.
	RfOver int

	// ModifiedBefore excludes any file whose current mtime is not strictly
	// before this cutoff -- protection against touching a file that
	// changed since the report was generated. Zero means unset, in which
	// case Plan defaults it to the report header's timestamp.
	ModifiedBefore time.Time

	// MoveTarget is the destination directory for Kind == Move.
	MoveTarget string
}

// ResolveRfOver implements the rf-over open-question resolution: when the
// caller left RfOver unset (nil), it is recovered by re-parsing the report
// header's recorded command line with reparse, the same flag set the group
// command itself uses. A report whose recorded command cannot be
// re-parsed refuses outright rather than guessing a value.
func ResolveRfOver(explicit *int, header types.ReportHeader, reparse func([]string) (int, error)) (int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if len(header.Command) == 0 {
		return 0, fmt.Errorf("dedupe: report has no recorded command, cannot recover --rf-over")
	}
	rfOver, err := reparse(header.Command)
	if err != nil {
		return 0, fmt.Errorf("dedupe: could not recover --rf-over from report command %q: %w", header.Command, err)
	}
	return rfOver, nil
}

// Plan re-stats every path named in groups, applies the modified-before
// cutoff and rf-over gate, selects a keeper per surviving group, and
// returns the operations needed to deduplicate the rest. Groups that drop
// below RfOver+1 surviving files, or whose keeper can no longer be
// determined (all members gone), are omitted from the plan without a
// warning of their own; a path that vanished is warned about through log
// as it is re-stat'd. None of this is treated as fatal.
func Plan(groups []report.Group, header types.ReportHeader, opts PlannerOptions, log *logging.Logger) *Plan {
	cutoff := opts.ModifiedBefore
	if cutoff.IsZero() {
		cutoff = header.Timestamp
	}

	plan := &Plan{MoveTarget: opts.MoveTarget}
	for _, g := range groups {
		survivors := statSurvivors(g, cutoff, log)
		if len(survivors) < opts.RfOver+1 || len(survivors) < 2 {
			continue
		}

		keeper := selectKeeper(survivors, opts.KeepPriority)
		for _, f := range survivors {
			if f == keeper {
				continue
			}
			size := f.Size
			if opts.Kind == Move {
				// Moving doesn't free disk space, so it reclaims nothing.
				size = 0
			}
			plan.add(Operation{
				Kind:   opts.Kind,
				Keep:   keeper.Path,
				Target: f.Path,
				Size:   size,
			})
		}
	}
	return plan
}

// statSurvivors re-stats every path in g, dropping any that vanished since
// the report was written (warned as InputAccessError) or whose current
// mtime is not before cutoff (silently protected, not warned -- this is
// the expected, common case of "someone is actively using this file").
func statSurvivors(g report.Group, cutoff time.Time, log *logging.Logger) []*types.FileInfo {
	var out []*types.FileInfo
	for _, p := range g.Paths {
		info, err := os.Stat(p.String())
		if err != nil {
			log.Warn(logging.InputAccessError, p.String(), err)
			continue
		}
		if !cutoff.IsZero() && !info.ModTime().Before(cutoff) {
			continue
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			log.Warn(logging.InputAccessError, p.String(), fmt.Errorf("cannot read device/inode"))
			continue
		}
		out = append(out, &types.FileInfo{
			Path:    p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Dev:     uint64(stat.Dev), //nolint:unconvert
			Ino:     stat.Ino,
			Nlink:   uint32(stat.Nlink),
		})
	}
	return out
}

// selectKeeper mirrors the teacher's selectSource: an explicit path-prefix
// priority wins first, then the file with the most existing hardlinks (so
// an already-hardlinked set absorbs a standalone duplicate rather than the
// reverse), then lexicographically-first path for determinism.
func selectKeeper(files []*types.FileInfo, priority []string) *types.FileInfo {
	for _, prefix := range priority {
		for _, f := range files {
			if strings.HasPrefix(f.Path.String(), prefix) {
				return f
			}
		}
	}

	best := files[0]
	for _, f := range files[1:] {
		if f.Nlink > best.Nlink || (f.Nlink == best.Nlink && f.Path.Compare(best.Path) < 0) {
			best = f
		}
	}
	return best
}
