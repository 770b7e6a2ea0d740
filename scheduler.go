// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "time"

// Scheduler delivers tasks after a delay. It is the only timing
// primitive the runtime requires; [Sleep] reduces to one Schedule call.
type Scheduler interface {
	// Schedule arranges for task to run once after d. The returned
	// cancel reports whether it prevented the delivery.
	Schedule(task func(), d time.Duration) (cancel func() bool)
}

// timerScheduler delivers through runtime timers.
type timerScheduler struct{}

// NewTimerScheduler creates the default timer-backed scheduler.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

func (timerScheduler) Schedule(task func(), d time.Duration) func() bool {
	if d <= 0 {
		d = 1
	}
	t := time.AfterFunc(d, task)
	return t.Stop
}
