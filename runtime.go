// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/iox"
)

// Runtime executes effects on fresh root fibers against a fixed
// environment and platform.
type Runtime struct {
	Env      Env
	Platform *Platform
}

// NewRuntime creates a runtime with an empty environment and the
// default platform.
func NewRuntime() Runtime {
	return Runtime{Env: EmptyEnv(), Platform: DefaultPlatform()}
}

// NewRuntimeWith creates a runtime with the given environment and
// platform.
func NewRuntimeWith(env Env, p *Platform) Runtime {
	if p == nil {
		p = DefaultPlatform()
	}
	return Runtime{Env: env, Platform: p}
}

// UnsafeRunAsync submits the effect on a new root fiber without
// blocking and invokes k with the Exit when it completes. Returns the
// root fiber handle.
func (r Runtime) UnsafeRunAsync(e Effect, k func(Exit)) *Fiber {
	f := newFiber(r.Platform, r.Env, r.Platform.Executor, true, false, nil)
	if k != nil {
		if exit, registered := f.state.addObserver(k); !registered {
			k(exit)
		}
	}
	f.shift(f.currentExecutor(), e)
	return f
}

// UnsafeRun executes the effect, blocking the calling goroutine with
// adaptive backoff until it completes, and returns the Exit.
func (r Runtime) UnsafeRun(e Effect) Exit {
	var done atomic.Bool
	var exit Exit
	r.UnsafeRunAsync(e, func(x Exit) {
		exit = x
		done.Store(true)
	})
	var bo iox.Backoff
	for !done.Load() {
		bo.Wait()
	}
	return exit
}

// UnsafeRunOrError executes the effect and splits the outcome at the Go
// error boundary: the success value, or a [*FailureError] wrapping the
// cause.
func (r Runtime) UnsafeRunOrError(e Effect) (Erased, error) {
	exit := r.UnsafeRun(e)
	if c, failed := exit.CauseOf(); failed {
		return nil, &FailureError{Cause: c}
	}
	v, _ := exit.Value()
	return v, nil
}
