// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"fmt"
	"strings"
)

// Cause is a composable failure value. A cause is one of:
//
//   - empty: the identity cause (no failure)
//   - fail: a typed, expected error
//   - die: a defect — an unexpected panic value from a user thunk
//   - interrupt: structured cancellation attributed to a fiber
//   - then: sequential composition of two causes
//   - both: parallel composition of two causes
//
// Dispatch uses type switches, not tags — Cause is a pure marker interface.
// [CauseThen] and [CauseBoth] treat the empty cause as identity on both
// sides, so the algebra never accumulates empty leaves.
type Cause interface {
	cause() // unexported marker method
}

type emptyCause struct{}

type failCause struct{ err error }

type dieCause struct{ defect any }

type interruptCause struct{ fiberID FiberID }

type thenCause struct{ left, right Cause }

type bothCause struct{ left, right Cause }

func (emptyCause) cause()     {}
func (failCause) cause()      {}
func (dieCause) cause()       {}
func (interruptCause) cause() {}
func (thenCause) cause()      {}
func (bothCause) cause()      {}

// CauseEmpty is the identity cause: it represents the absence of failure
// and is the unit of both [CauseThen] and [CauseBoth].
var CauseEmpty Cause = emptyCause{}

// CauseFail creates a cause for a typed, expected error.
func CauseFail(err error) Cause { return failCause{err: err} }

// CauseDie creates a cause for a defect (an unexpected panic value).
func CauseDie(defect any) Cause { return dieCause{defect: defect} }

// CauseInterrupt creates a cause recording interruption by the given fiber.
func CauseInterrupt(id FiberID) Cause { return interruptCause{fiberID: id} }

// CauseThen composes two causes sequentially (left happened before right).
// Empty is the identity element; construction is O(1).
func CauseThen(left, right Cause) Cause {
	if IsEmptyCause(left) {
		return right
	}
	if IsEmptyCause(right) {
		return left
	}
	return thenCause{left: left, right: right}
}

// CauseBoth composes two causes that occurred concurrently.
// Empty is the identity element; construction is O(1).
func CauseBoth(left, right Cause) Cause {
	if IsEmptyCause(left) {
		return right
	}
	if IsEmptyCause(right) {
		return left
	}
	return bothCause{left: left, right: right}
}

// IsEmptyCause reports whether c is the identity cause.
func IsEmptyCause(c Cause) bool {
	_, ok := c.(emptyCause)
	return ok || c == nil
}

// Failed reports whether c contains at least one typed error.
func Failed(c Cause) bool {
	switch n := c.(type) {
	case failCause:
		return true
	case thenCause:
		return Failed(n.left) || Failed(n.right)
	case bothCause:
		return Failed(n.left) || Failed(n.right)
	default:
		return false
	}
}

// Died reports whether c contains at least one defect.
func Died(c Cause) bool {
	switch n := c.(type) {
	case dieCause:
		return true
	case thenCause:
		return Died(n.left) || Died(n.right)
	case bothCause:
		return Died(n.left) || Died(n.right)
	default:
		return false
	}
}

// Interrupted reports whether c contains at least one interruption.
func Interrupted(c Cause) bool {
	switch n := c.(type) {
	case interruptCause:
		return true
	case thenCause:
		return Interrupted(n.left) || Interrupted(n.right)
	case bothCause:
		return Interrupted(n.left) || Interrupted(n.right)
	default:
		return false
	}
}

// InterruptedOnly reports whether c is non-empty and consists exclusively
// of interruptions. Such causes are not reported as unobserved failures.
func InterruptedOnly(c Cause) bool {
	return Interrupted(c) && !Failed(c) && !Died(c)
}

// Interruptors returns the set of fiber ids that contributed interrupt
// leaves to c, in first-occurrence order.
func Interruptors(c Cause) []FiberID {
	var out []FiberID
	seen := map[FiberID]struct{}{}
	var walk func(Cause)
	walk = func(c Cause) {
		switch n := c.(type) {
		case interruptCause:
			if _, ok := seen[n.fiberID]; !ok {
				seen[n.fiberID] = struct{}{}
				out = append(out, n.fiberID)
			}
		case thenCause:
			walk(n.left)
			walk(n.right)
		case bothCause:
			walk(n.left)
			walk(n.right)
		}
	}
	walk(c)
	return out
}

// FailureOption returns the first typed error in c, if any.
func FailureOption(c Cause) (error, bool) {
	switch n := c.(type) {
	case failCause:
		return n.err, true
	case thenCause:
		if err, ok := FailureOption(n.left); ok {
			return err, true
		}
		return FailureOption(n.right)
	case bothCause:
		if err, ok := FailureOption(n.left); ok {
			return err, true
		}
		return FailureOption(n.right)
	default:
		return nil, false
	}
}

// FailureOrCause splits c into its first typed error, or — when no typed
// error exists — the cause itself. The boolean reports the error side.
func FailureOrCause(c Cause) (error, Cause, bool) {
	if err, ok := FailureOption(c); ok {
		return err, nil, true
	}
	return nil, c, false
}

// Defects returns every defect value in c, in occurrence order.
func Defects(c Cause) []any {
	var out []any
	var walk func(Cause)
	walk = func(c Cause) {
		switch n := c.(type) {
		case dieCause:
			out = append(out, n.defect)
		case thenCause:
			walk(n.left)
			walk(n.right)
		case bothCause:
			walk(n.left)
			walk(n.right)
		}
	}
	walk(c)
	return out
}

// ContainsCause reports whether sub occurs within c, modulo the identity
// laws: every cause contains the empty cause, and a composite contains
// its components.
func ContainsCause(c, sub Cause) bool {
	if IsEmptyCause(sub) {
		return true
	}
	if causeEqual(c, sub) {
		return true
	}
	switch n := c.(type) {
	case thenCause:
		return ContainsCause(n.left, sub) || ContainsCause(n.right, sub)
	case bothCause:
		return ContainsCause(n.left, sub) || ContainsCause(n.right, sub)
	default:
		return false
	}
}

// causeEqual compares two causes structurally.
// Fail leaves compare by error identity, die leaves by defect identity.
func causeEqual(a, b Cause) bool {
	switch x := a.(type) {
	case emptyCause:
		return IsEmptyCause(b)
	case failCause:
		y, ok := b.(failCause)
		return ok && x.err == y.err
	case dieCause:
		y, ok := b.(dieCause)
		return ok && x.defect == y.defect
	case interruptCause:
		y, ok := b.(interruptCause)
		return ok && x.fiberID == y.fiberID
	case thenCause:
		y, ok := b.(thenCause)
		return ok && causeEqual(x.left, y.left) && causeEqual(x.right, y.right)
	case bothCause:
		y, ok := b.(bothCause)
		return ok && causeEqual(x.left, y.left) && causeEqual(x.right, y.right)
	default:
		return false
	}
}

// stripInterrupted removes every interrupt leaf, renormalizing with the
// identity laws.
func stripInterrupted(c Cause) Cause {
	switch n := c.(type) {
	case interruptCause:
		return CauseEmpty
	case thenCause:
		return CauseThen(stripInterrupted(n.left), stripInterrupted(n.right))
	case bothCause:
		return CauseBoth(stripInterrupted(n.left), stripInterrupted(n.right))
	default:
		return c
	}
}

// PrettyCause renders c as an indented multi-line description.
func PrettyCause(c Cause) string {
	var b strings.Builder
	prettyCause(&b, c, 0)
	return b.String()
}

func prettyCause(b *strings.Builder, c Cause, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := c.(type) {
	case emptyCause:
		fmt.Fprintf(b, "%sempty\n", indent)
	case failCause:
		fmt.Fprintf(b, "%sfail: %v\n", indent, n.err)
	case dieCause:
		fmt.Fprintf(b, "%sdie: %v\n", indent, n.defect)
	case interruptCause:
		fmt.Fprintf(b, "%sinterrupted by fiber #%d\n", indent, n.fiberID)
	case thenCause:
		fmt.Fprintf(b, "%sthen:\n", indent)
		prettyCause(b, n.left, depth+1)
		prettyCause(b, n.right, depth+1)
	case bothCause:
		fmt.Fprintf(b, "%sboth:\n", indent)
		prettyCause(b, n.left, depth+1)
		prettyCause(b, n.right, depth+1)
	}
}
