package group

import (
	"sync"

	"github.com/kpagano/fclones/internal/device"
	"github.com/kpagano/fclones/internal/types"
)

// dispatcher hands out a per-device semaphore sized to the device's
// concurrency budget, so stages C-E never issue more than the registry's
// allowance of concurrent reads against one spindle. Rotational devices
// collapse to width 1 (a single sequential lane); solid-state and unknown
// devices get the registry's random-access width. Widths are fixed at
// first use per device and never resized.
type dispatcher struct {
	registry *device.Registry

	mu   sync.Mutex
	sems map[uint64]types.Semaphore
}

func newDispatcher(registry *device.Registry) *dispatcher {
	return &dispatcher{registry: registry, sems: make(map[uint64]types.Semaphore)}
}

// acquire blocks until a slot is available for entry's device and returns a
// function that releases it.
func (d *dispatcher) acquire(entry *logicalEntry) (release func()) {
	sem := d.semFor(entry.path(), entry.sg.First().Dev)
	sem.Acquire()
	return sem.Release
}

func (d *dispatcher) semFor(path string, dev uint64) types.Semaphore {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sems[dev]; ok {
		return s
	}
	class := d.registry.ClassFor(path, dev)
	budget := d.registry.BudgetFor("", dev, class)
	s := types.NewSemaphore(budget.Random)
	d.sems[dev] = s
	return s
}
