// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync/atomic"

// Fiber state machine. The entire state is one immutable record behind a
// single atomic pointer; every transition is a CAS loop. Allowed
// transitions:
//
//	Running <-> Suspended(epoch)
//	any Executing state may accumulate interruption or observers
//	any Executing state -> Done(exit), exactly once (terminal)
//
// The record is never mutated in place: transitions copy, adjust, and
// publish.
type fiberState struct {
	// done marks the terminal state; exit is valid only when done.
	done bool
	exit Exit

	// suspended marks the async-suspended status. interruptible, epoch,
	// and blockingOn describe the suspension; running fibers carry the
	// mask on their own stack instead.
	suspended     bool
	interruptible bool
	epoch         uint64
	blockingOn    []FiberID

	// observers are one-shot continuations invoked with the exit at the
	// terminal transition. Insertion ordered; invocation order is
	// unspecified (currently reverse of registration).
	observers []func(Exit)

	// interrupted accumulates interruption causes delivered to this
	// fiber. CauseEmpty when never interrupted.
	interrupted Cause
}

// stateRef is the atomic holder for a fiber's state record.
type stateRef struct {
	p atomic.Pointer[fiberState]
}

func newStateRef() *stateRef {
	r := &stateRef{}
	r.p.Store(&fiberState{interrupted: CauseEmpty})
	return r
}

func (r *stateRef) load() *fiberState { return r.p.Load() }

// interruptedCause returns the accumulated interruption cause.
func (r *stateRef) interruptedCause() Cause {
	return r.p.Load().interrupted
}

// isInterrupted reports whether any interruption has been delivered.
func (r *stateRef) isInterrupted() bool {
	return !IsEmptyCause(r.p.Load().interrupted)
}

// poll returns the exit if the fiber is done.
func (r *stateRef) poll() (Exit, bool) {
	s := r.p.Load()
	if !s.done {
		return Exit{}, false
	}
	return s.exit, true
}

// addObserver registers cb to run at the terminal transition. If the
// fiber is already done it returns the exit with registered=false and
// the caller delivers it.
func (r *stateRef) addObserver(cb func(Exit)) (Exit, bool) {
	for {
		old := r.p.Load()
		if old.done {
			return old.exit, false
		}
		next := *old
		next.observers = append(append([]func(Exit){}, old.observers...), cb)
		if r.p.CompareAndSwap(old, &next) {
			return Exit{}, true
		}
	}
}

// addInterruption accumulates cause into the state. If the fiber was
// suspended interruptible, the suspension is claimed (transitioned back
// to Running with a bumped epoch) and resume=true: the caller must
// re-submit the fiber with the accumulated cause.
func (r *stateRef) addInterruption(cause Cause) (resume bool, total Cause) {
	for {
		old := r.p.Load()
		if old.done {
			return false, old.interrupted
		}
		next := *old
		next.interrupted = CauseThen(old.interrupted, cause)
		claim := old.suspended && old.interruptible
		if claim {
			next.suspended = false
			next.interruptible = false
			next.epoch = old.epoch + 1
			next.blockingOn = nil
		}
		if r.p.CompareAndSwap(old, &next) {
			return claim, next.interrupted
		}
	}
}

// unionInterruption merges an ancestor's accumulated cause into this
// fiber's state without waking it; delivery happens cooperatively at the
// next turn start.
func (r *stateRef) unionInterruption(cause Cause) {
	if IsEmptyCause(cause) {
		return
	}
	for {
		old := r.p.Load()
		if old.done || ContainsCause(old.interrupted, cause) {
			return
		}
		next := *old
		next.interrupted = CauseThen(old.interrupted, cause)
		if r.p.CompareAndSwap(old, &next) {
			return
		}
	}
}

// enterSuspend publishes the Suspended status for a new async round.
func (r *stateRef) enterSuspend(interruptible bool, epoch uint64, blockingOn []FiberID) {
	for {
		old := r.p.Load()
		if old.done {
			return
		}
		next := *old
		next.suspended = true
		next.interruptible = interruptible
		next.epoch = epoch
		next.blockingOn = blockingOn
		if r.p.CompareAndSwap(old, &next) {
			return
		}
	}
}

// exitSuspend attempts to claim the suspension for epoch, transitioning
// Suspended(epoch) back to Running with a bumped epoch. It fails for
// stale epochs — each async round resumes exactly once.
func (r *stateRef) exitSuspend(epoch uint64) bool {
	for {
		old := r.p.Load()
		if old.done || !old.suspended || old.epoch != epoch {
			return false
		}
		next := *old
		next.suspended = false
		next.interruptible = false
		next.epoch = old.epoch + 1
		next.blockingOn = nil
		if r.p.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// currentEpoch returns the state's suspension epoch counter.
func (r *stateRef) currentEpoch() uint64 {
	return r.p.Load().epoch
}

// tryDone performs the terminal transition, returning the observers to
// notify. ok is false if the fiber already completed.
func (r *stateRef) tryDone(exit Exit) (observers []func(Exit), ok bool) {
	for {
		old := r.p.Load()
		if old.done {
			return nil, false
		}
		next := &fiberState{done: true, exit: exit, interrupted: old.interrupted}
		if r.p.CompareAndSwap(old, next) {
			return old.observers, true
		}
	}
}
