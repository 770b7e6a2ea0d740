// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"math"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// DefaultYieldOpCount is the per-fiber op budget before a forced yield.
const DefaultYieldOpCount = 2048

// Executor runs fiber turns. Submit enqueues one turn; YieldOpCount is
// the fairness budget: a fiber exceeding it re-submits its continuation.
type Executor interface {
	// Submit schedules task for execution. Returns false if the executor
	// cannot accept work.
	Submit(task func()) bool

	// YieldOpCount returns the per-turn op budget for fibers running here.
	YieldOpCount() int
}

// goExecutor schedules each turn on its own goroutine, delegating
// multiplexing to the Go scheduler.
type goExecutor struct {
	yieldOpCount int
}

// NewExecutor creates the default goroutine-backed executor.
func NewExecutor(yieldOpCount int) Executor {
	if yieldOpCount <= 0 {
		yieldOpCount = DefaultYieldOpCount
	}
	return &goExecutor{yieldOpCount: yieldOpCount}
}

func (e *goExecutor) Submit(task func()) bool {
	go task()
	return true
}

func (e *goExecutor) YieldOpCount() int { return e.yieldOpCount }

// blockingExecutor accepts unbounded tasks that may block their thread
// indefinitely, so effects declared blocking never starve the main
// executor. The op budget is effectively unlimited: a blocking region
// gains nothing from forced yields.
type blockingExecutor struct{}

// NewBlockingExecutor creates the unbounded blocking executor.
func NewBlockingExecutor() Executor { return blockingExecutor{} }

func (blockingExecutor) Submit(task func()) bool {
	go task()
	return true
}

func (blockingExecutor) YieldOpCount() int { return math.MaxInt32 }

// singleThreadCapacity is the run-queue capacity of the cooperative
// executor.
const singleThreadCapacity = 1024

// SingleThreadExecutor is a cooperative executor: Submit enqueues turns
// on a lock-free ring and Drain runs them on the calling goroutine, in
// the style of a timer-loop host. No goroutines are spawned.
type SingleThreadExecutor struct {
	tasks        lfq.MPMC[func()]
	yieldOpCount int
}

// NewSingleThreadExecutor creates a cooperative executor. Turns enqueue
// until Drain is called.
func NewSingleThreadExecutor(yieldOpCount int) *SingleThreadExecutor {
	if yieldOpCount <= 0 {
		yieldOpCount = DefaultYieldOpCount
	}
	e := &SingleThreadExecutor{yieldOpCount: yieldOpCount}
	e.tasks.Init(singleThreadCapacity)
	return e
}

// Submit enqueues a turn, backing off while the ring is full.
func (e *SingleThreadExecutor) Submit(task func()) bool {
	var bo iox.Backoff
	for {
		err := e.tasks.Enqueue(&task)
		if err == nil {
			return true
		}
		if !iox.IsWouldBlock(err) {
			return false
		}
		bo.Wait()
	}
}

func (e *SingleThreadExecutor) YieldOpCount() int { return e.yieldOpCount }

// Drain runs enqueued turns on the calling goroutine until the run
// queue is empty, returning the number of turns executed. Turns may
// enqueue further turns; those run too.
func (e *SingleThreadExecutor) Drain() int {
	n := 0
	for {
		task, err := e.tasks.Dequeue()
		if err != nil {
			return n
		}
		task()
		n++
	}
}
