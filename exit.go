// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "fmt"

// Exit is the terminal outcome of a fiber: success carrying a value, or
// failure carrying a [Cause].
type Exit struct {
	failed bool
	value  Erased
	cause  Cause
}

// ExitSucceed creates a successful Exit carrying v.
func ExitSucceed(v Erased) Exit {
	return Exit{value: v}
}

// ExitHalt creates a failed Exit carrying the given cause.
func ExitHalt(c Cause) Exit {
	return Exit{failed: true, cause: c}
}

// ExitFail creates a failed Exit for a typed error.
func ExitFail(err error) Exit {
	return ExitHalt(CauseFail(err))
}

// ExitDie creates a failed Exit for a defect.
func ExitDie(defect any) Exit {
	return ExitHalt(CauseDie(defect))
}

// ExitInterrupt creates a failed Exit recording interruption by id.
func ExitInterrupt(id FiberID) Exit {
	return ExitHalt(CauseInterrupt(id))
}

// Succeeded reports whether the exit is a success.
func (e Exit) Succeeded() bool { return !e.failed }

// Interrupted reports whether the exit failed with a cause containing
// an interruption.
func (e Exit) Interrupted() bool { return e.failed && Interrupted(e.cause) }

// Value returns the success value and true, or zero and false.
func (e Exit) Value() (Erased, bool) {
	if e.failed {
		return nil, false
	}
	return e.value, true
}

// CauseOf returns the failure cause and true, or nil and false.
func (e Exit) CauseOf() (Cause, bool) {
	if !e.failed {
		return nil, false
	}
	return e.cause, true
}

// MatchExit pattern matches on the exit, calling onFailure or onSuccess.
func MatchExit(e Exit, onFailure func(Cause) Erased, onSuccess func(Erased) Erased) Erased {
	if e.failed {
		return onFailure(e.cause)
	}
	return onSuccess(e.value)
}

// MapExit applies a function to the success value.
func MapExit(e Exit, f func(Erased) Erased) Exit {
	if e.failed {
		return e
	}
	return ExitSucceed(f(e.value))
}

// ZipExitPar combines two exits as concurrent outcomes: both successes
// combine values with f; failures compose causes with [CauseBoth].
func ZipExitPar(a, b Exit, f func(Erased, Erased) Erased) Exit {
	switch {
	case a.failed && b.failed:
		return ExitHalt(CauseBoth(a.cause, b.cause))
	case a.failed:
		return a
	case b.failed:
		return b
	default:
		return ExitSucceed(f(a.value, b.value))
	}
}

// String renders the exit for diagnostics.
func (e Exit) String() string {
	if e.failed {
		return fmt.Sprintf("Failure(%s)", PrettyCause(e.cause))
	}
	return fmt.Sprintf("Success(%v)", e.value)
}

// FailureError wraps a Cause as a Go error for blocking run boundaries.
type FailureError struct {
	Cause Cause
}

// Error implements the error interface with the pretty-printed cause.
func (e *FailureError) Error() string {
	return "fiber: effect failed:\n" + PrettyCause(e.Cause)
}
