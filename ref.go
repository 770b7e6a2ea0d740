// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync/atomic"

// Ref is an atomic mutable cell shared between fibers. All operations
// are total and lock-free via compare-and-swap loops.
type Ref struct {
	box atomic.Pointer[refBox]
}

// refBox wraps the value so heterogeneous (and nil) values live behind
// one atomic pointer.
type refBox struct{ value Erased }

// NewRef allocates a Ref holding v. Allocation is pure: it performs no
// effects and can be done outside the runtime.
func NewRef(v Erased) *Ref {
	r := &Ref{}
	r.box.Store(&refBox{value: v})
	return r
}

// MakeRef allocates a Ref inside an effect.
func MakeRef(v Erased) Effect {
	return EffectTotal(func() Erased { return NewRef(v) })
}

// Get reads the current value.
func (r *Ref) Get() Effect {
	return EffectTotal(func() Erased { return r.box.Load().value })
}

// Set replaces the current value.
func (r *Ref) Set(v Erased) Effect {
	return EffectTotal(func() Erased {
		r.box.Store(&refBox{value: v})
		return unitValue
	})
}

// GetAndSet replaces the value, returning the previous one.
func (r *Ref) GetAndSet(v Erased) Effect {
	return r.Modify(func(old Erased) (Erased, Erased) { return old, v })
}

// Update transforms the value with f.
func (r *Ref) Update(f func(Erased) Erased) Effect {
	return r.Modify(func(old Erased) (Erased, Erased) {
		next := f(old)
		return next, next
	})
}

// Modify atomically transforms the value with f, which returns the
// result to surface and the new value to store.
func (r *Ref) Modify(f func(Erased) (Erased, Erased)) Effect {
	return EffectTotal(func() Erased {
		for {
			old := r.box.Load()
			result, next := f(old.value)
			if r.box.CompareAndSwap(old, &refBox{value: next}) {
				return result
			}
		}
	})
}

// FiberRef is a fiber-local variable. Each fiber owns its value in its
// own map; children receive a snapshot on fork, and on join the parent's
// value is updated via combine(parent, child).
type FiberRef struct {
	initial Erased
	combine func(parent, child Erased) Erased
}

// MakeFiberRef allocates a fiber-local variable in the current fiber.
// combine merges parent and child values on join; nil means the child's
// value wins.
func MakeFiberRef(initial Erased, combine func(parent, child Erased) Erased) Effect {
	if combine == nil {
		combine = func(_, child Erased) Erased { return child }
	}
	return fiberRefNewNode{initial: initial, combine: combine}
}

// Get reads the current fiber's value.
func (r *FiberRef) Get() Effect {
	return fiberRefModifyNode{ref: r, f: func(v Erased) (Erased, Erased) { return v, v }}
}

// Set replaces the current fiber's value.
func (r *FiberRef) Set(v Erased) Effect {
	return fiberRefModifyNode{ref: r, f: func(Erased) (Erased, Erased) { return unitValue, v }}
}

// Update transforms the current fiber's value with f.
func (r *FiberRef) Update(f func(Erased) Erased) Effect {
	return fiberRefModifyNode{ref: r, f: func(v Erased) (Erased, Erased) {
		next := f(v)
		return next, next
	}}
}

// Modify atomically transforms the current fiber's value with f, which
// returns the result to surface and the new value to store.
func (r *FiberRef) Modify(f func(Erased) (Erased, Erased)) Effect {
	return fiberRefModifyNode{ref: r, f: f}
}

// Locally runs e with the value overridden to v, restoring the previous
// value on every exit path.
func (r *FiberRef) Locally(v Erased, e Effect) Effect {
	return FlatMap(r.Get(), func(old Erased) Effect {
		return Ensuring(Then(r.Set(v), e), r.Set(old))
	})
}
