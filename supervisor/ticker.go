package supervisor

import (
	"time"

	"go.uber.org/atomic"
)

// activityTicker fires whenever a device has gone idle for its
// interval, so the Supervisor can re-enumerate a Ready device
// periodically without a goroutine per tick. Adapted from the
// teacher's MutableTicker: same mutable-interval/interrupt shape, now
// tracking a device's last-activity deadline instead of a UI refresh
// rate.
type activityTicker struct {
	C <-chan bool

	interval *atomic.Int64
	enabled  *atomic.Bool
	reset    chan bool
}

// newActivityTicker starts firing on C every interval, until touched
// (which restarts the wait) or Stop is called.
func newActivityTicker(interval time.Duration) *activityTicker {
	fire := make(chan bool, 1)
	t := &activityTicker{
		C:        fire,
		interval: atomic.NewInt64(int64(interval)),
		enabled:  atomic.NewBool(true),
		reset:    make(chan bool, 1),
	}

	go func() {
		for {
			timer := time.NewTimer(time.Duration(t.interval.Load()))
			select {
			case <-timer.C:
				if t.enabled.Load() {
					select {
					case fire <- true:
					default:
					}
				}
			case <-t.reset:
				timer.Stop()
			}
		}
	}()

	return t
}

// Touch restarts the wait, as if the device had just been active.
func (t *activityTicker) Touch() {
	select {
	case t.reset <- true:
	default:
	}
}

func (t *activityTicker) SetInterval(d time.Duration) {
	t.interval.Store(int64(d))
	t.Touch()
}

func (t *activityTicker) Stop() {
	t.enabled.Store(false)
	t.Touch()
}
