// Package walker provides parallel, depth-bounded filesystem traversal that
// produces a stream of candidate FileInfo for the group engine.
//
// # Architecture
//
// The walker keeps the teacher's fan-out/fan-in shape: one goroutine per
// directory, a semaphore bounding concurrent directory reads, a single
// collector goroutine draining a buffered result channel, and atomic
// counters for lock-free progress stats.
//
//	Run() starts
//	    │
//	    ├──► spawn collector goroutine (reads resultCh)
//	    │
//	    ├──► for each root path:
//	    │        └──► walkDirectory(root, depth=0)
//	    │                 ├──► acquire semaphore
//	    │                 ├──► listDirectory() → files, subdirs
//	    │                 ├──► filter + send matches to resultCh
//	    │                 └──► for each subdir: walkDirectory(subdir, depth+1)
//	    │                 ├──► release semaphore
//	    │
//	    ├──► walkerWg.Wait()
//	    ├──► close(resultCh)
//	    ├──► collectorWg.Wait()
//	    └──► return results
package walker

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/progress"
	"github.com/kpagano/fclones/internal/types"
)

// Options configures a Walker.
type Options struct {
	Roots []string // Root paths to scan

	// MaxDepth bounds recursion. -1 means unlimited. 0 means: accept listed
	// files only, reject directories outright (with a warning).
	MaxDepth int

	Include []string // doublestar inclusion patterns, relative to the originating root
	Exclude []string // doublestar exclusion patterns

	MinSize int64 // files smaller than this are dropped
	MaxSize int64 // 0 means unbounded

	FollowSymlinks bool // follow symlinked directories instead of skipping them
	OneFilesystem  bool // bound traversal to the root's device

	Workers      int // max concurrent directory reads
	ShowProgress bool
}

// Walker discovers files matching the configured filters using parallel
// directory traversal. A Walker is single-use: create with New, call Run
// once.
type Walker struct {
	opts Options
	log  *logging.Logger

	walkerWg  sync.WaitGroup
	walkerSem types.Semaphore
	resultCh  chan *types.FileInfo
	stats     *stats
	bar       *progress.Bar

	visitedMu sync.Mutex
	visited   map[types.DevIno]bool // directories visited, for symlink cycle-breaking

	rootDev uint64 // set when OneFilesystem is enabled, from the first root
}

// New creates a Walker for discovering files under opts.Roots.
func New(opts Options, log *logging.Logger) *Walker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Walker{
		opts:    opts,
		log:     log,
		visited: make(map[types.DevIno]bool),
	}
}

type stats struct {
	scannedFiles atomic.Int64
	matchedFiles atomic.Int64
	scannedBytes atomic.Int64
	matchedBytes atomic.Int64
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run walks every configured root and returns the matching files. ctx is
// checked at each directory boundary so external cancellation is honored at
// the next I/O suspension point.
func (w *Walker) Run(ctx context.Context) []*types.FileInfo {
	w.walkerSem = types.NewSemaphore(w.opts.Workers)
	w.bar = progress.New(w.opts.ShowProgress, -1)
	w.stats = &stats{startTime: time.Now()}
	w.bar.Describe(w.stats)
	w.resultCh = make(chan *types.FileInfo, 1000)

	var results []*types.FileInfo
	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		for r := range w.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	for _, root := range w.opts.Roots {
		w.walkRoot(ctx, root)
	}

	w.walkerWg.Wait()
	close(w.resultCh)
	collectorWg.Wait()

	w.bar.Finish(w.stats)
	return results
}

// walkRoot stats and validates one root path before entering the recursive
// walk. An inaccessible root is logged as an InputAccessError error and
// skipped; the walk over the other roots continues. The group command
// stats every root itself before the walk and exits on a missing one.
func (w *Walker) walkRoot(ctx context.Context, root string) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		w.log.Error(logging.InputAccessError, fmt.Errorf("resolve root %q: %w", root, err))
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		w.log.Error(logging.InputAccessError, fmt.Errorf("stat root %q: %w", root, err))
		return
	}

	if w.opts.OneFilesystem && w.rootDev == 0 {
		w.rootDev = dirIdentity(info).Dev
	}

	if !info.IsDir() {
		w.handleFile(absPath, info)
		return
	}

	if w.opts.MaxDepth == 0 {
		w.log.Warn(logging.WalkWarning, absPath, fmt.Errorf("directory at depth 0 skipped (recursion disabled)"))
		return
	}

	w.walkDirectory(ctx, absPath, root, 0)
}

// walkDirectory spawns a goroutine to process one directory and recursively
// fan out to its subdirectories, following the teacher's
// add-before-spawn / acquire-then-release-before-recursing pattern.
func (w *Walker) walkDirectory(ctx context.Context, dir string, originRoot string, depth int) {
	w.walkerWg.Add(1)
	go func() {
		defer w.walkerWg.Done()

		select {
		case <-ctx.Done():
			return
		default:
		}

		w.walkerSem.Acquire()
		defer w.walkerSem.Release()

		files, subdirs, err := w.listDirectory(dir, originRoot, depth)
		if err != nil {
			w.log.Warn(logging.WalkWarning, dir, err)
			return
		}

		for _, f := range files {
			w.handleScannedFile(f)
		}
		w.bar.Describe(w.stats)

		if w.opts.MaxDepth >= 0 && depth+1 > w.opts.MaxDepth {
			return
		}
		for _, sub := range subdirs {
			w.walkDirectory(ctx, sub, originRoot, depth+1)
		}
	}()
}

// listDirectory reads one directory with batched ReadDir, classifying each
// entry into a matched file, a subdirectory to recurse into, or a skip.
func (w *Walker) listDirectory(dirPath, originRoot string, depth int) (files []*types.FileInfo, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, readErr := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if readErr != nil && readErr != io.EOF {
				return files, subdirs, readErr
			}
			break
		}

		for _, entry := range entries {
			f, sub := w.processEntry(dirPath, originRoot, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

func (w *Walker) processEntry(dirPath, originRoot string, entry fs.DirEntry) (file *types.FileInfo, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())
	relPath, _ := filepath.Rel(originRoot, fullPath)

	if entry.Type()&fs.ModeSymlink != 0 {
		if !w.opts.FollowSymlinks {
			return nil, ""
		}
		info, err := os.Stat(fullPath) // follows the link
		if err != nil {
			w.log.Warn(logging.WalkWarning, fullPath, err)
			return nil, ""
		}
		if info.IsDir() {
			return w.classifyDir(fullPath, relPath, info)
		}
		return w.classifyFile(fullPath, relPath, info), ""
	}

	if entry.IsDir() {
		info, err := entry.Info()
		if err != nil {
			w.log.Warn(logging.WalkWarning, fullPath, err)
			return nil, ""
		}
		return w.classifyDir(fullPath, relPath, info)
	}

	if !entry.Type().IsRegular() {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		w.log.Warn(logging.WalkWarning, fullPath, err)
		return nil, ""
	}
	return w.classifyFile(fullPath, relPath, info), ""
}

func (w *Walker) classifyDir(fullPath, relPath string, info os.FileInfo) (file *types.FileInfo, subdir string) {
	id := dirIdentity(info)

	w.visitedMu.Lock()
	already := w.visited[id]
	w.visited[id] = true
	w.visitedMu.Unlock()
	if already {
		return nil, ""
	}

	if w.opts.OneFilesystem && id.Dev != w.rootDev {
		return nil, ""
	}
	if w.matchesExclude(relPath) {
		return nil, ""
	}
	return nil, fullPath
}

func (w *Walker) classifyFile(fullPath, relPath string, info os.FileInfo) *types.FileInfo {
	if w.opts.OneFilesystem {
		fi := newFileInfo(types.Intern(fullPath), info)
		if fi.Dev != w.rootDev {
			return nil
		}
	}
	if !w.matchesFilters(relPath) {
		return nil
	}
	return newFileInfo(types.Intern(fullPath), info)
}

// handleFile processes a single non-directory root argument directly.
func (w *Walker) handleFile(fullPath string, info os.FileInfo) {
	fi := newFileInfo(types.Intern(fullPath), info)
	w.handleScannedFile(fi)
}

// handleScannedFile applies the size/pattern filters and forwards a
// surviving file to the collector, updating stats either way.
func (w *Walker) handleScannedFile(f *types.FileInfo) {
	w.stats.scannedFiles.Add(1)
	w.stats.scannedBytes.Add(f.Size)

	if f.Size < w.opts.MinSize {
		return
	}
	if w.opts.MaxSize > 0 && f.Size > w.opts.MaxSize {
		return
	}

	w.resultCh <- f
	w.stats.matchedFiles.Add(1)
	w.stats.matchedBytes.Add(f.Size)
}

// matchesFilters applies Include (if any) then Exclude to a file's
// root-relative path.
func (w *Walker) matchesFilters(relPath string) bool {
	if len(w.opts.Include) > 0 {
		matched := false
		for _, pat := range w.opts.Include {
			if ok, _ := doublestar.Match(pat, relPath); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return !w.matchesExclude(relPath)
}

// matchesExclude matches a pattern against the full root-relative path, and
// also against the bare basename -- so a single-segment pattern like ".git"
// or "*.tmp" excludes a name wherever it occurs, the way fclones' original
// implementation and most glob-based exclude lists behave, while a
// multi-segment pattern like "**/*.jpg" still matches the full relative
// path.
func (w *Walker) matchesExclude(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pat := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, base); ok {
			return true
		}
	}
	return false
}
