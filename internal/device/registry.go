// Package device classifies the underlying storage for a scanned path and
// hands out per-device concurrency budgets to the group engine and the
// dedupe executor.
//
// Rotational media perform best when large-file reads are serialized per
// spindle; solid-state media benefit from many concurrent random reads. The
// registry's budgets and overrides are fixed once built; its per-device class
// cache is guarded by a mutex, so every stage can consult it from any
// goroutine.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Class classifies a device's read/write performance characteristics.
type Class int

const (
	Unknown Class = iota
	Rotational
	SolidState
	Network
)

func (c Class) String() string {
	switch c {
	case Rotational:
		return "rotational"
	case SolidState:
		return "solid-state"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// Budget is the per-device concurrency allowance for the two access
// patterns the cascade and the executor issue.
type Budget struct {
	Sequential int // width for large ordered reads, default 1
	Random     int // width for random reads/writes, default = core count
}

// Registry maps device identifiers to a class and a concurrency budget. It
// is built once at startup; afterwards only the class cache filled by
// ClassFor changes.
type Registry struct {
	mu        sync.Mutex
	classOf   map[uint64]Class
	defaults  Budget
	overrides map[string]Budget // keyed by device name ("main", "default") or mount path
}

// NewRegistry creates a Registry with the given default budgets, applying
// any user-supplied overrides (parsed from repeatable --threads
// NAME=SEQ,RAND flags).
func NewRegistry(defaultBudget Budget, overrides map[string]Budget) *Registry {
	if defaultBudget.Sequential <= 0 {
		defaultBudget.Sequential = 1
	}
	if defaultBudget.Random <= 0 {
		defaultBudget.Random = runtime.NumCPU()
	}
	merged := make(map[string]Budget, len(overrides))
	for k, v := range overrides {
		merged[k] = v
	}
	return &Registry{
		classOf:   make(map[uint64]Class),
		defaults:  defaultBudget,
		overrides: merged,
	}
}

// ParseOverride parses one "--threads NAME=SEQ,RAND" argument.
func ParseOverride(s string) (name string, budget Budget, err error) {
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		return "", Budget{}, fmt.Errorf("malformed --threads override %q: want NAME=SEQ,RAND", s)
	}
	name = s[:eq]
	rest := s[eq+1:]
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return "", Budget{}, fmt.Errorf("malformed --threads override %q: want NAME=SEQ,RAND", s)
	}
	seq, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", Budget{}, fmt.Errorf("malformed sequential width in %q: %w", s, err)
	}
	rand, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", Budget{}, fmt.Errorf("malformed random width in %q: %w", s, err)
	}
	return name, Budget{Sequential: seq, Random: rand}, nil
}

// ClassFor classifies the device containing path, caching the result by raw
// device number. Classification is best-effort: any failure to read sysfs
// yields Unknown rather than an error, since this is an optimization hint,
// not a correctness requirement.
func (r *Registry) ClassFor(path string, dev uint64) Class {
	r.mu.Lock()
	if c, ok := r.classOf[dev]; ok {
		r.mu.Unlock()
		return c
	}
	r.mu.Unlock()

	c := classify(path, dev)

	r.mu.Lock()
	r.classOf[dev] = c
	r.mu.Unlock()
	return c
}

// BudgetFor returns the concurrency budget to use for a given device, honoring
// a name/mount-path override if one was supplied, otherwise the class-aware
// default.
func (r *Registry) BudgetFor(name string, dev uint64, class Class) Budget {
	r.mu.Lock()
	if b, ok := r.overrides[name]; ok {
		r.mu.Unlock()
		return b
	}
	if b, ok := r.overrides["default"]; ok {
		r.mu.Unlock()
		return b
	}
	r.mu.Unlock()

	switch class {
	case SolidState:
		return Budget{Sequential: r.defaults.Random, Random: r.defaults.Random}
	case Rotational:
		return Budget{Sequential: 1, Random: 1}
	default:
		return r.defaults
	}
}

// classify inspects the filesystem backing path and its device number to
// infer a Class. It recognizes network/virtual filesystems via statfs magic
// and falls back to sysfs's per-block-device "rotational" attribute.
func classify(path string, dev uint64) Class {
	var sfs unix.Statfs_t
	if err := unix.Statfs(path, &sfs); err == nil && isNetworkMagic(sfs.Type) {
		return Network
	}

	major := unix.Major(dev)
	minor := unix.Minor(dev)

	rotPath := fmt.Sprintf("/sys/dev/block/%d:%d/queue/rotational", major, minor)
	if rot, ok := readRotational(rotPath); ok {
		if rot {
			return Rotational
		}
		return SolidState
	}

	// Partition device nodes expose their own sysfs entry without a
	// queue/rotational attribute; the parent disk's attribute applies.
	linkPath := fmt.Sprintf("/sys/dev/block/%d:%d", major, minor)
	if target, err := os.Readlink(linkPath); err == nil {
		parent := filepath.Dir(target)
		parentRot := filepath.Join("/sys/dev/block", parent, "queue", "rotational")
		if rot, ok := readRotational(parentRot); ok {
			if rot {
				return Rotational
			}
			return SolidState
		}
	}

	return Unknown
}

func readRotational(path string) (rotational bool, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return false, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return false, false
	}
	val := strings.TrimSpace(scanner.Text())
	return val == "1", val == "0" || val == "1"
}

// Network filesystem magic numbers from statfs(2), as seen on Linux.
const (
	nfsSuperMagic   = 0x6969
	cifsMagicNumber = 0xff534d42
	smbSuperMagic   = 0x517b
	fuseSuperMagic  = 0x65735546
)

func isNetworkMagic(magic int64) bool {
	switch magic {
	case nfsSuperMagic, cifsMagicNumber, smbSuperMagic, fuseSuperMagic:
		return true
	default:
		return false
	}
}
