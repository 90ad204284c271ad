package notify

import (
	"sync"
	"time"

	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/host"
)

// animationLoop cycles favicon variants on the host scheduler. start and
// stop are called with lock held; ticks acquire it themselves.
type animationLoop struct {
	sched host.Scheduler
	lock  sync.Locker

	variants []favicon.Variant
	index    int
	handle   host.TimerHandle

	// gen invalidates ticks scheduled by an earlier start.
	gen uint64
}

// start applies variants[0] synchronously and schedules the advance. The
// caller guarantees variants is non-empty.
func (a *animationLoop) start(variants []favicon.Variant, interval time.Duration, onTick func(favicon.Variant)) {
	a.stop()

	a.gen++
	gen := a.gen
	a.variants = variants
	a.index = 0
	onTick(variants[0])

	a.handle = a.sched.ScheduleRepeating(interval, func() {
		a.lock.Lock()
		defer a.lock.Unlock()
		if a.gen != gen || a.handle == 0 {
			return
		}
		a.index = (a.index + 1) % len(a.variants)
		onTick(a.variants[a.index])
	})
}

// stop cancels the pending timer. Safe when not running.
func (a *animationLoop) stop() {
	if a.handle == 0 {
		return
	}
	a.sched.Cancel(a.handle)
	a.handle = 0
	a.gen++
}

func (a *animationLoop) running() bool { return a.handle != 0 }
