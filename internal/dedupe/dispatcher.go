package dedupe

import (
	"os"
	"sync"
	"syscall"

	"github.com/kpagano/fclones/internal/device"
	"github.com/kpagano/fclones/internal/types"
)

// execDispatcher bounds concurrent file operations per device, the same
// idiom as the group engine's cascade dispatcher: one semaphore per device,
// sized from the registry, created lazily on first use.
type execDispatcher struct {
	registry *device.Registry

	mu   sync.Mutex
	sems map[uint64]types.Semaphore
}

func newExecDispatcher(registry *device.Registry) *execDispatcher {
	return &execDispatcher{registry: registry, sems: make(map[uint64]types.Semaphore)}
}

func (d *execDispatcher) acquire(path string) (release func()) {
	sem := d.semFor(path)
	sem.Acquire()
	return sem.Release
}

func (d *execDispatcher) semFor(path string) types.Semaphore {
	dev := statDev(path)

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

// statDev returns 0 (a shared, conservative bucket) when the path cannot be
// stat'd -- e.g. it was already removed by a racing process -- rather than
// failing dispatch outright; applyOperation will surface the real error
// when it tries to open the file.
func statDev(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(stat.Dev) //nolint:unconvert
}
