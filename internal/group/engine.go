// Package group implements the duplicate-grouping cascade: five stages that
// progressively narrow candidate sets using increasingly expensive
// equivalence tests (size, then on-disk identity, then prefix/mid/full
// content hashes). Correctness depends on never losing a file's set
// membership across stages and never false-merging files that share a
// hardlink.
package group

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kpagano/fclones/internal/cache"
	"github.com/kpagano/fclones/internal/device"
	"github.com/kpagano/fclones/internal/hasher"
	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/types"
)

// Options configures the cascade.
type Options struct {
	MinSize      int64 // files smaller than this are dropped before Stage A
	RfOver       int   // minimum redundant copies a group must have to survive Stage B
	PrefixWindow int64 // Stage C window size, default 4096
	MidWindow    int64 // Stage D window size, default 4096
	Algorithm    string

	Registry *device.Registry
	Log      *logging.Logger

	// Cache, when non-nil, is consulted before every hash computation and
	// updated on every miss, so unchanged files are never re-read across
	// runs. A nil Cache hashes unconditionally, same as the teacher always
	// did.
	Cache *cache.Cache

	// PriorityOf assigns a priority class to a file for the final
	// ordering/tie-break rule (lower value sorts first, i.e. is kept by
	// default). Files are otherwise ordered lexicographically by path.
	PriorityOf func(*types.FileInfo) int

	// ShowProgress is not read by the engine; the cascade renders no
	// progress bar.
	ShowProgress bool
}

// Engine drives the cascade. It is stateless between calls to Run aside from
// the shared device registry and the per-device semaphores of its
// dispatcher.
type Engine struct {
	opts Options
	disp *dispatcher
}

// New creates an Engine from opts, applying defaults for zero-valued fields.
func New(opts Options) *Engine {
	if opts.PrefixWindow <= 0 {
		opts.PrefixWindow = 4096
	}
	if opts.MidWindow <= 0 {
		opts.MidWindow = 4096
	}
	if opts.Algorithm == "" {
		opts.Algorithm = hasher.XXH3
	}
	if opts.PriorityOf == nil {
		opts.PriorityOf = func(*types.FileInfo) int { return 0 }
	}
	if opts.Registry == nil {
		opts.Registry = device.NewRegistry(device.Budget{}, nil)
	}
	return &Engine{opts: opts, disp: newDispatcher(opts.Registry)}
}

// logicalEntry is one surviving Stage-B representative: a set of hardlinked
// paths sharing one (device, inode), carrying the hash computed by the
// cascade stage most recently run over it.
type logicalEntry struct {
	sg   types.SiblingGroup
	size int64
	hash types.Hash128
}

func (e *logicalEntry) path() string { return e.sg.First().Path.String() }

// partition is a set of logicalEntry values currently believed to be
// equivalent; stages either split a partition further or drop it once it
// can no longer contain a duplicate (down to a single logical entry).
type partition []*logicalEntry

// Run executes all five stages over files and returns the final groups,
// ordered by descending file length so consumers see the highest-value
// duplicates soonest.
func (e *Engine) Run(ctx context.Context, files []*types.FileInfo) []types.FileGroup {
	sizePartitions := e.stageA(files)
	bPartitions := e.stageB(sizePartitions)

	cPartitions := e.hashStage(ctx, bPartitions, func(size int64) (int64, int64) {
		return 0, min64(e.opts.PrefixWindow, size)
	})
	dPartitions := e.hashStage(ctx, cPartitions, func(size int64) (int64, int64) {
		return hasher.Window(size, e.opts.MidWindow)
	})
	ePartitions := e.hashStage(ctx, dPartitions, func(size int64) (int64, int64) {
		return 0, -1
	})

	return e.finalize(ePartitions)
}

// stageA accumulates files into length -> list buckets, dropping every
// bucket of size 1 and every file smaller than MinSize.
func (e *Engine) stageA(files []*types.FileInfo) []partition {
	buckets := make(map[int64][]*types.FileInfo)
	for _, f := range files {
		if f.Size < e.opts.MinSize {
			continue
		}
		buckets[f.Size] = append(buckets[f.Size], f)
	}

	var partitions []partition
	for size, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		p := make(partition, 0, len(bucket))
		for _, f := range bucket {
			p = append(p, &logicalEntry{sg: types.NewSiblingGroup([]*types.FileInfo{f}), size: size})
		}
		partitions = append(partitions, p)
	}
	return partitions
}

// stageB folds FileInfo records sharing a (device, inode) into one logical
// representative within each size partition -- the correctness gate against
// double-counting hardlinks -- then drops any partition that can no longer
// meet rf-over.
func (e *Engine) stageB(partitions []partition) []partition {
	var out []partition
	for _, p := range partitions {
		byIdentity := make(map[types.DevIno][]*types.FileInfo)
		var size int64
		for _, entry := range p {
			f := entry.sg.First()
			byIdentity[f.Identity()] = append(byIdentity[f.Identity()], f)
			size = entry.size
		}

		var collapsed partition
		logicalCount := 0
		for _, files := range byIdentity {
			collapsed = append(collapsed, &logicalEntry{sg: types.NewSiblingGroup(files), size: size})
			logicalCount++
		}

		if logicalCount < e.opts.RfOver+1 {
			continue
		}
		if len(collapsed) < 2 {
			continue
		}
		out = append(out, collapsed)
	}
	return out
}

// hashStage hashes every surviving entry's representative file over the
// window windowFn(size) returns, then re-partitions each incoming partition
// by the resulting hash, dropping any resulting sub-partition that no
// longer has more than one logical entry.
func (e *Engine) hashStage(ctx context.Context, partitions []partition, windowFn func(size int64) (offset, length int64)) []partition {
	var wg sync.WaitGroup
	for _, p := range partitions {
		for _, entry := range p {
			wg.Add(1)
			go func(entry *logicalEntry) {
				defer wg.Done()
				select {
				case <-ctx.Done():
					return
				default:
				}

				release := e.disp.acquire(entry)
				defer release()

				offset, length := windowFn(entry.size)
				var h types.Hash128
				var err error
				if e.opts.Cache != nil {
					h, err = e.opts.Cache.Sum128(entry.sg.First(), offset, length, e.opts.Algorithm)
				} else {
					h, err = hasher.Sum128(entry.path(), offset, length, e.opts.Algorithm)
				}
				if err != nil {
					e.opts.Log.Warn(logging.HashReadError, entry.path(), err)
					entry.hash = types.Hash128{} // sentinel: never matches a real hash, entry falls out below
					entry.size = -1              // mark as failed
					return
				}
				entry.hash = h
				for _, f := range entry.sg.Items() {
					fh := h
					f.Hash = &fh
				}
			}(entry)
		}
	}
	wg.Wait()

	var out []partition
	for _, p := range partitions {
		byHash := make(map[types.Hash128]partition)
		for _, entry := range p {
			if entry.size < 0 {
				continue // dropped: read failure during this stage
			}
			byHash[entry.hash] = append(byHash[entry.hash], entry)
		}
		for _, sub := range byHash {
			if len(sub) >= 2 {
				out = append(out, sub)
			}
		}
	}
	return out
}

// finalize converts surviving partitions (each now sharing a full-content
// hash) into immutable FileGroup values, ordered by descending size.
func (e *Engine) finalize(partitions []partition) []types.FileGroup {
	groups := make([]types.FileGroup, 0, len(partitions))
	for _, p := range partitions {
		var files []*types.FileInfo
		var size int64
		var hash types.Hash128
		for _, entry := range p {
			// Siblings in entry.sg already share one inode: they're the same
			// on-disk object, not separate redundant copies. Only the
			// representative goes into the group.
			files = append(files, entry.sg.First())
			size = entry.size
			hash = entry.hash
		}

		keyFunc := func(f *types.FileInfo) string {
			return fmt.Sprintf("%010d:%s", e.opts.PriorityOf(f), f.Path.String())
		}
		groups = append(groups, types.NewFileGroup(size, hash, files, keyFunc))
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].FileLen > groups[j].FileLen
	})
	return groups
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
