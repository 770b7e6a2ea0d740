// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Promise is a one-shot awaitable cell: created empty, completed exactly
// once, permanently readable afterwards. Any number of fibers may await;
// completion happens-before every awaiter's resumption.
type Promise struct {
	mu       spin.Lock
	done     bool
	exit     Exit
	awaiters []func(Exit)

	// completions counts successful completions: only the first Done
	// call increments it, so it is 0 or 1.
	completions atomix.Uint32
}

// NewPromise allocates an empty promise.
func NewPromise() *Promise { return &Promise{} }

// MakePromise allocates an empty promise inside an effect.
func MakePromise() Effect {
	return EffectTotal(func() Erased { return NewPromise() })
}

// Done completes the promise with the given exit. Returns true if this
// call completed it; subsequent completions are no-ops. Awaiters are
// resumed with the exit, each in its own scheduling turn.
func (p *Promise) Done(exit Exit) bool {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return false
	}
	p.done = true
	p.exit = exit
	awaiters := p.awaiters
	p.awaiters = nil
	p.mu.Unlock()
	p.completions.Add(1)
	for _, resume := range awaiters {
		resume(exit)
	}
	return true
}

// IsDone reports completion without taking the lock. It may trail Done
// by one publication step; Poll is the authoritative read.
func (p *Promise) IsDone() bool {
	return p.completions.Load() > 0
}

// Poll returns the exit if the promise has completed, without suspending.
func (p *Promise) Poll() (Exit, bool) {
	p.mu.Lock()
	exit, done := p.exit, p.done
	p.mu.Unlock()
	return exit, done
}

// Await succeeds or fails with the promise's outcome. A late awaiter
// registered after completion resumes synchronously in its own turn.
func (p *Promise) Await() Effect {
	return EffectAsyncMaybe(func(resume func(Effect)) Effect {
		p.mu.Lock()
		if p.done {
			exit := p.exit
			p.mu.Unlock()
			return FromExit(exit)
		}
		p.awaiters = append(p.awaiters, func(exit Exit) {
			resume(FromExit(exit))
		})
		p.mu.Unlock()
		return nil
	})
}

// Succeed completes the promise with a value. Effect result: whether
// this completion took effect.
func (p *Promise) Succeed(v Erased) Effect {
	return p.CompleteExit(ExitSucceed(v))
}

// FailWith completes the promise with a typed error.
func (p *Promise) FailWith(err error) Effect {
	return p.CompleteExit(ExitFail(err))
}

// DieWith completes the promise with a defect.
func (p *Promise) DieWith(defect any) Effect {
	return p.CompleteExit(ExitDie(defect))
}

// HaltWith completes the promise with a cause.
func (p *Promise) HaltWith(c Cause) Effect {
	return p.CompleteExit(ExitHalt(c))
}

// InterruptPromise completes the promise as interrupted by the calling
// fiber.
func (p *Promise) InterruptPromise() Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		return p.CompleteExit(ExitInterrupt(id))
	})
}

// CompleteExit completes the promise with an exit inside an effect.
func (p *Promise) CompleteExit(exit Exit) Effect {
	return EffectTotal(func() Erased { return p.Done(exit) })
}

// CompleteWith runs e and completes the promise with its outcome,
// whether success or failure.
func (p *Promise) CompleteWith(e Effect) Effect {
	return FoldCauseM(e,
		func(c Cause) Effect { return p.HaltWith(c) },
		func(v Erased) Effect { return p.Succeed(v) },
	)
}
