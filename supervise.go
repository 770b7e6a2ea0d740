// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/spin"

// Supervision. Non-daemon children are registered with their parent and
// adopted by the nearest live ancestor when the parent completes, so
// completed fibers never pin their descendants and vice versa. Daemon
// fibers are tracked in a process-wide registry with no parent pointer.

// childSet is a fiber's mutable set of supervised children. Guarded by a
// spin lock: critical sections are a map operation long.
type childSet struct {
	mu     spin.Lock
	m      map[FiberID]*Fiber
	closed bool
}

// add registers a child; returns false once the set is closed (the
// owning fiber completed).
func (s *childSet) add(c *Fiber) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.m == nil {
		s.m = map[FiberID]*Fiber{}
	}
	s.m[c.id] = c
	s.mu.Unlock()
	return true
}

func (s *childSet) remove(id FiberID) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

// snapshot returns the current children.
func (s *childSet) snapshot() []*Fiber {
	s.mu.Lock()
	out := make([]*Fiber, 0, len(s.m))
	for _, c := range s.m {
		out = append(out, c)
	}
	s.mu.Unlock()
	return out
}

// ids returns the current children's fiber ids.
func (s *childSet) ids() []FiberID {
	s.mu.Lock()
	out := make([]FiberID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	s.mu.Unlock()
	return out
}

// drain closes the set and returns the orphaned children for adoption.
func (s *childSet) drain() []*Fiber {
	s.mu.Lock()
	s.closed = true
	out := make([]*Fiber, 0, len(s.m))
	for _, c := range s.m {
		out = append(out, c)
	}
	s.m = nil
	s.mu.Unlock()
	return out
}

// fiberRegistry is the process-wide set of daemon fibers, kept reachable
// until completion.
type fiberRegistry struct {
	mu spin.Lock
	m  map[FiberID]*Fiber
}

var daemonFibers = fiberRegistry{m: map[FiberID]*Fiber{}}

func (r *fiberRegistry) add(f *Fiber) {
	r.mu.Lock()
	r.m[f.id] = f
	r.mu.Unlock()
}

func (r *fiberRegistry) remove(id FiberID) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

// releaseSupervision runs once at the terminal transition: deregister
// from the parent, hand children to the nearest live ancestor, clear the
// parent pointer, and drop any daemon tracking.
func (f *Fiber) releaseSupervision() {
	parent := f.parent.Load()
	if parent != nil {
		parent.children.remove(f.id)
		f.parent.Store(nil)
	}
	for _, orphan := range f.children.drain() {
		adoptFiber(parent, orphan)
	}
	daemonFibers.remove(f.id)
}

// adoptFiber attaches an orphan to the nearest live ancestor, falling
// back to the daemon registry when no ancestor survives.
func adoptFiber(ancestor *Fiber, orphan *Fiber) {
	for ancestor != nil {
		if _, done := ancestor.state.poll(); !done && ancestor.children.add(orphan) {
			orphan.parent.Store(ancestor)
			return
		}
		ancestor = ancestor.parent.Load()
	}
	orphan.parent.Store(nil)
	daemonFibers.add(orphan)
}

// propagateAncestorInterruption runs at the start of each scheduling
// turn: union each ancestor's accumulated interrupt cause into this
// fiber's state. This is how an ancestor marked interrupt-pending wakes
// a currently running descendant cooperatively.
func (f *Fiber) propagateAncestorInterruption() {
	for p := f.parent.Load(); p != nil; p = p.parent.Load() {
		f.state.unionInterruption(p.state.interruptedCause())
	}
}
