// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync"

// Continuation frames. The interpreter maintains explicit stacks — the
// host call stack is never used for trampolining. Frames divide into
// user continuations (apply, fold) and region sentinels (interrupt exit,
// daemon exit, env pop, executor pop). Unwinding on failure performs the
// sentinels' pop actions but only a fold frame stops the unwind.
//
// Dispatch uses type switches, not tags — contFrame is a pure marker
// interface.
type contFrame interface {
	frame() // unexported marker method
}

// applyFrame continues with the next effect computed from a value.
type applyFrame struct{ k func(Erased) Effect }

// foldFrame is the sole error-handler frame kind.
type foldFrame struct {
	onFailure func(Cause) Effect
	onSuccess func(Erased) Effect
}

// interruptExitFrame pops the interrupt-mask stack on region exit.
type interruptExitFrame struct{}

// daemonExitFrame pops the daemon-mask stack on region exit.
type daemonExitFrame struct{}

// envPopFrame pops the environment stack on region exit.
type envPopFrame struct{}

// executorPopFrame pops the executor stack on region exit. The
// interpreter shifts back to the restored executor when it differs.
type executorPopFrame struct{}

func (applyFrame) frame()         {}
func (foldFrame) frame()          {}
func (interruptExitFrame) frame() {}
func (daemonExitFrame) frame()    {}
func (envPopFrame) frame()        {}
func (executorPopFrame) frame()   {}

// stackInitialCap is the pre-allocated frame capacity per fiber.
// Growth beyond it is geometric via append.
const stackInitialCap = 16

// stackPool recycles continuation stack backings across fiber lifetimes.
// A fiber returns its backing at completion; reuse requires the fiber to
// be done (single owner until the terminal transition).
var stackPool = sync.Pool{
	New: func() any {
		s := make([]contFrame, 0, stackInitialCap)
		return &s
	},
}

// contStack is a growable frame stack owned by a single fiber.
type contStack struct {
	frames []contFrame
}

func newContStack() contStack {
	return contStack{frames: (*stackPool.Get().(*[]contFrame))[:0]}
}

func (s *contStack) push(f contFrame) {
	s.frames = append(s.frames, f)
}

// pop removes and returns the top frame; ok is false on empty.
func (s *contStack) pop() (contFrame, bool) {
	n := len(s.frames)
	if n == 0 {
		return nil, false
	}
	f := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	return f, true
}

func (s *contStack) depth() int { return len(s.frames) }

// release returns the backing to the pool. The stack must not be used
// afterwards.
func (s *contStack) release() {
	frames := s.frames[:0]
	s.frames = nil
	stackPool.Put(&frames)
}

// boolStack is a mask stack with a fixed initial value below all pushes.
type boolStack struct {
	initial bool
	rest    []bool
}

func (s *boolStack) head() bool {
	if n := len(s.rest); n > 0 {
		return s.rest[n-1]
	}
	return s.initial
}

func (s *boolStack) push(v bool) { s.rest = append(s.rest, v) }

func (s *boolStack) pop() {
	if n := len(s.rest); n > 0 {
		s.rest = s.rest[:n-1]
	}
}
