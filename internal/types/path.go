package types

import (
	"path/filepath"
	"strings"
	"sync"
)

// Path is an interned, immutable file-system path.
//
// Paths recur heavily across a run: the same directory component appears in
// every sibling's path, and keeper paths are referenced from many dedupe
// actions. Rather than allocate a fresh string per reference, Intern shares
// one *Path per distinct normalized path value for the lifetime of the
// process. A Path must never be mutated after it is shared.
type Path struct {
	abs        bool
	components []string
	rendered   string
}

var internPool sync.Map // map[string]*Path

// Intern returns the shared Path for s, normalizing it first. Repeated calls
// with paths that normalize to the same value return the identical pointer.
func Intern(s string) *Path {
	clean := filepath.Clean(s)
	if p, ok := internPool.Load(clean); ok {
		return p.(*Path)
	}

	abs := filepath.IsAbs(clean)
	trimmed := clean
	if abs {
		trimmed = strings.TrimPrefix(clean, string(filepath.Separator))
	}
	var components []string
	if trimmed != "" && trimmed != "." {
		components = strings.Split(trimmed, string(filepath.Separator))
	}

	p := &Path{abs: abs, components: components, rendered: clean}
	actual, _ := internPool.LoadOrStore(clean, p)
	return actual.(*Path)
}

// String renders the path in its normalized form.
func (p *Path) String() string {
	if p == nil {
		return ""
	}
	return p.rendered
}

// Components returns the ordered name components, excluding any root marker.
func (p *Path) Components() []string { return p.components }

// IsAbs reports whether the path is rooted.
func (p *Path) IsAbs() bool { return p.abs }

// Join interns the result of joining p with the given relative elements.
func (p *Path) Join(elem ...string) *Path {
	parts := append([]string{p.rendered}, elem...)
	return Intern(filepath.Join(parts...))
}

// Compare orders paths by normalized byte content, lexicographically.
// This is the tie-break key used when sorting files within a group.
func (p *Path) Compare(other *Path) int {
	return strings.Compare(p.rendered, other.rendered)
}
