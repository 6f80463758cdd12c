package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kpagano/fclones/internal/device"
	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/progress"
)

// ExecutorOptions configures Execute.
type ExecutorOptions struct {
	DryRun          bool
	SymlinkFallback bool // HardLink falls back to SymLink on EXDEV
	Verbose         bool
	ShowProgress    bool
	MoveTarget      string // destination directory, used when plan operations are Move

	Registry *device.Registry
	Log      *logging.Logger
}

// stats tracks live progress, rendered through the shared progress.Bar the
// same way the teacher's deduper does.
type stats struct {
	total, done int64
	saved       int64
	start       time.Time
}

func (s *stats) String() string {
	pct := 0.0
	if s.total > 0 {
		pct = float64(s.done) / float64(s.total) * 100
	}
	return fmt.Sprintf("processed %d/%d files (%.0f%%), reclaimed %s in %.1fs",
		s.done, s.total, pct, humanize.IBytes(uint64(s.saved)), time.Since(s.start).Seconds())
}

// Execute applies plan. In dry-run mode nothing is touched on disk; the
// returned Summary reports what would have happened, with the exact
// "would process N files and reclaim M bytes" wording on Summary.String().
// In live mode, operations run concurrently, bounded per-device by the
// registry's random-access budget, exactly as the group engine's hashing
// stages are.
func Execute(ctx context.Context, plan *Plan, opts ExecutorOptions) *Summary {
	if opts.DryRun {
		return &Summary{DryRun: true, FilesProcessed: plan.FileCount, BytesReclaimed: plan.ReclaimedBytes}
	}

	registry := opts.Registry
	if registry == nil {
		registry = device.NewRegistry(device.Budget{}, nil)
	}
	disp := newExecDispatcher(registry)

	bar := progress.New(opts.ShowProgress, int64(plan.FileCount))
	st := &stats{total: int64(plan.FileCount), start: time.Now()}
	bar.Describe(st)

	var mu sync.Mutex
	summary := &Summary{}

	var wg sync.WaitGroup
	for _, op := range plan.Operations {
		wg.Add(1)
		go func(op Operation) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
			}

			release := disp.acquire(op.Target.String())
			defer release()

			result := applyOperation(op, opts)

			mu.Lock()
			defer mu.Unlock()
			if result.Skipped {
				summary.Errors++
				opts.Log.Warn(logging.ActionError, op.Target.String(), result.Err)
			} else {
				summary.FilesProcessed++
				summary.BytesReclaimed += op.Size
				st.done++
				st.saved += op.Size
				if opts.Verbose {
					_, _ = fmt.Fprintln(os.Stdout, result)
				}
			}
			bar.Describe(st)
		}(op)
	}
	wg.Wait()
	bar.Finish(st)

	return summary
}

// applyOperation takes a non-blocking exclusive advisory lock on target
// immediately before acting on it, skipping the file if the lock is held
// elsewhere, then performs the requested kind of replacement. It does not
// re-check target's mtime; the modified-before cutoff is applied only when
// the plan is built.
func applyOperation(op Operation, opts ExecutorOptions) Result {
	target := op.Target.String()

	f, err := os.Open(target)
	if err != nil {
		return Result{Op: op, Skipped: true, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return Result{Op: op, Skipped: true, Err: errors.New("file in use (locked by another process)")}
	}

	switch op.Kind {
	case Remove:
		if err := os.Remove(target); err != nil {
			return Result{Op: op, Skipped: true, Err: err}
		}
	case HardLink:
		if err := createHardlink(op.Keep.String(), target); err != nil {
			if errors.Is(err, syscall.EXDEV) && opts.SymlinkFallback {
				if err := createSymlink(op.Keep.String(), target); err != nil {
					return Result{Op: op, Skipped: true, Err: err}
				}
				break
			}
			return Result{Op: op, Skipped: true, Err: err}
		}
	case SymLink:
		if err := createSymlink(op.Keep.String(), target); err != nil {
			return Result{Op: op, Skipped: true, Err: err}
		}
	case Move:
		if err := moveAside(target, opts.MoveTarget); err != nil {
			return Result{Op: op, Skipped: true, Err: err}
		}
	default:
		return Result{Op: op, Skipped: true, Err: fmt.Errorf("unknown operation kind %v", op.Kind)}
	}

	return Result{Op: op}
}
