// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "time"

// Derived operations. Every combinator in this file reduces to the
// primitive node kinds in effect.go.
//
// Minimal definition: Succeed and FlatMap are necessary and sufficient
// for sequencing. Map and Then are kept as derived forms that avoid an
// intermediate effect allocation in user code.

// Map applies a pure function to the result of an effect.
// Map(e, f) = FlatMap(e, v -> Succeed(f(v))).
func Map(e Effect, f func(Erased) Erased) Effect {
	return FlatMap(e, func(v Erased) Effect { return Succeed(f(v)) })
}

// Then sequences two effects, discarding the first result.
func Then(first, second Effect) Effect {
	return FlatMap(first, func(Erased) Effect { return second })
}

// As replaces the result of an effect with a constant.
func As(e Effect, v Erased) Effect {
	return Map(e, func(Erased) Erased { return v })
}

// Tap runs f on the result of e for its side effects, passing the
// original result through.
func Tap(e Effect, f func(Erased) Effect) Effect {
	return FlatMap(e, func(v Erased) Effect { return As(f(v), v) })
}

// CatchAll recovers from typed failures with h. Defects and
// interruptions are not caught; use [CatchAllCause] for the full cause.
// CatchAll(e, h) = FoldCauseM(e, split-first-error, Succeed).
func CatchAll(e Effect, h func(error) Effect) Effect {
	return FoldCauseM(e,
		func(c Cause) Effect {
			if err, ok := FailureOption(c); ok {
				return h(err)
			}
			return Halt(c)
		},
		Succeed,
	)
}

// CatchAllCause recovers from any failure, exposing the full cause
// including defects and interruptions.
func CatchAllCause(e Effect, h func(Cause) Effect) Effect {
	return FoldCauseM(e, h, Succeed)
}

// FoldM runs e, continuing with onSuccess on success or onFailure on a
// typed failure. Defects and interruptions pass through unhandled.
func FoldM(e Effect, onFailure func(error) Effect, onSuccess func(Erased) Effect) Effect {
	return FoldCauseM(e,
		func(c Cause) Effect {
			if err, ok := FailureOption(c); ok {
				return onFailure(err)
			}
			return Halt(c)
		},
		onSuccess,
	)
}

// EitherExit runs e and succeeds with its Exit, converting failure into
// an ordinary value. Interruption still terminates the fiber.
func EitherExit(e Effect) Effect {
	return FoldCauseM(e,
		func(c Cause) Effect {
			if Interrupted(c) {
				return Halt(c)
			}
			return Succeed(ExitHalt(c))
		},
		func(v Erased) Effect { return Succeed(ExitSucceed(v)) },
	)
}

// FromExit lifts an Exit back into an effect.
func FromExit(exit Exit) Effect {
	if c, ok := exit.CauseOf(); ok {
		return Halt(c)
	}
	v, _ := exit.Value()
	return Succeed(v)
}

// Never is an effect that never completes. It suspends without
// registering any resumption and terminates only by interruption.
func Never() Effect {
	return EffectAsync(func(func(Effect)) {})
}

// Ensuring guarantees that the finalizer runs after e on every exit
// path — success, failure, and interruption. The finalizer itself runs
// with interruption masked; its failures compose with e's cause.
func Ensuring(e Effect, finalizer Effect) Effect {
	return CheckInterruptStatus(func(restore bool) Effect {
		return Uninterruptible(FoldCauseM(SetInterruptStatus(e, restore),
			func(c Cause) Effect {
				return FoldCauseM(finalizer,
					func(fc Cause) Effect { return Halt(CauseThen(c, fc)) },
					func(Erased) Effect { return Halt(c) },
				)
			},
			func(v Erased) Effect { return As(finalizer, v) },
		))
	})
}

// OnInterrupt runs h if and only if e's failure cause contains an
// interruption. The handler runs with interruption masked.
func OnInterrupt(e Effect, h Effect) Effect {
	return CheckInterruptStatus(func(restore bool) Effect {
		return Uninterruptible(FoldCauseM(SetInterruptStatus(e, restore),
			func(c Cause) Effect {
				if Interrupted(c) {
					return Then(h, Halt(c))
				}
				return Halt(c)
			},
			Succeed,
		))
	})
}

// Bracket acquires a resource, uses it, and guarantees release on every
// exit path. Acquisition and release run with interruption masked; use
// runs with the caller's interrupt status restored.
func Bracket(acquire Effect, release func(Erased) Effect, use func(Erased) Effect) Effect {
	return CheckInterruptStatus(func(restore bool) Effect {
		return Uninterruptible(FlatMap(acquire, func(resource Erased) Effect {
			return FoldCauseM(SetInterruptStatus(use(resource), restore),
				func(c Cause) Effect {
					return FoldCauseM(release(resource),
						func(rc Cause) Effect { return Halt(CauseThen(c, rc)) },
						func(Erased) Effect { return Halt(c) },
					)
				},
				func(v Erased) Effect { return As(release(resource), v) },
			)
		}))
	})
}

// Race runs two effects concurrently. The first completion wins: the
// loser is interrupted and the winner's exit becomes the race's outcome.
func Race(left, right Effect) Effect {
	merge := func(winner Exit, loser *Fiber) Effect {
		return Then(fireAndForgetInterrupt(loser), FromExit(winner))
	}
	return RaceWith(left, right, merge, merge)
}

// fireAndForgetInterrupt begins interrupting f without awaiting its exit.
func fireAndForgetInterrupt(f *Fiber) Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		f.interruptNow(id)
		return Unit()
	})
}

// Timeout runs e, returning (value, true) if it completes within d and
// (nil, false) otherwise. The loser is interrupted.
func Timeout(e Effect, d time.Duration) Effect {
	some := Map(e, func(v Erased) Erased { return TimeoutResult{Value: v, Completed: true} })
	none := As(Sleep(d), TimeoutResult{})
	return Race(some, none)
}

// TimeoutResult is the outcome of [Timeout]: the effect's value when it
// completed within the window.
type TimeoutResult struct {
	Value     Erased
	Completed bool
}

// ZipWith runs two effects sequentially and combines their results.
func ZipWith(a, b Effect, f func(Erased, Erased) Erased) Effect {
	return FlatMap(a, func(av Erased) Effect {
		return Map(b, func(bv Erased) Erased { return f(av, bv) })
	})
}

// Zip runs two effects sequentially, producing a [Pair].
func Zip(a, b Effect) Effect {
	return ZipWith(a, b, func(av, bv Erased) Erased { return Pair{First: av, Second: bv} })
}

// Pair is the result of zipping two effects.
type Pair struct {
	First, Second Erased
}

// ZipWithPar runs two effects concurrently and combines their results.
// Completion of both sides happens-before the combining step. If either
// side fails, the other is interrupted and the causes compose in
// parallel.
func ZipWithPar(a, b Effect, f func(Erased, Erased) Erased) Effect {
	merge := func(first Exit, other *Fiber, firstIsLeft bool) Effect {
		if c, ok := first.CauseOf(); ok {
			return FlatMap(other.Interrupt(), func(v Erased) Effect {
				otherExit := v.(Exit)
				if oc, failed := otherExit.CauseOf(); failed {
					return Halt(CauseBoth(c, stripInterrupted(oc)))
				}
				return Halt(c)
			})
		}
		return FlatMap(other.Join(), func(ov Erased) Effect {
			fv, _ := first.Value()
			if firstIsLeft {
				return Succeed(f(fv, ov))
			}
			return Succeed(f(ov, fv))
		})
	}
	return RaceWith(a, b,
		func(exit Exit, loser *Fiber) Effect { return merge(exit, loser, true) },
		func(exit Exit, loser *Fiber) Effect { return merge(exit, loser, false) },
	)
}

// ZipPar runs two effects concurrently, producing a [Pair].
func ZipPar(a, b Effect) Effect {
	return ZipWithPar(a, b, func(av, bv Erased) Erased { return Pair{First: av, Second: bv} })
}

// Sleep suspends the fiber for the given duration using the platform
// scheduler. Interruption wakes the fiber immediately; the stale timer
// resumption is discarded by the suspension epoch.
func Sleep(d time.Duration) Effect {
	return EffectSuspendWith(func(p *Platform, _ FiberID) Effect {
		return EffectAsync(func(resume func(Effect)) {
			p.Scheduler.Schedule(func() { resume(Unit()) }, d)
		})
	})
}

// Blocking runs e on the platform's blocking executor, restoring the
// previous executor afterwards.
func Blocking(e Effect) Effect {
	return EffectSuspendWith(func(p *Platform, _ FiberID) Effect {
		return Lock(p.BlockingExecutor, e)
	})
}

// Foreach runs f over each element in order, collecting the results.
// Accumulation state is allocated at execution, so the returned effect
// is reusable.
func Foreach(items []Erased, f func(Erased) Effect) Effect {
	return EffectSuspend(func() Effect {
		results := make([]Erased, 0, len(items))
		var loop func(i int) Effect
		loop = func(i int) Effect {
			if i == len(items) {
				return Succeed(results)
			}
			return FlatMap(f(items[i]), func(v Erased) Effect {
				results = append(results, v)
				return loop(i + 1)
			})
		}
		return loop(0)
	})
}

// ForeachPar runs f over each element concurrently, collecting results
// in input order. Any failure interrupts the remaining fibers.
func ForeachPar(items []Erased, f func(Erased) Effect) Effect {
	if len(items) == 0 {
		return Succeed([]Erased{})
	}
	acc := Map(f(items[0]), func(v Erased) Erased { return []Erased{v} })
	for _, item := range items[1:] {
		next := f(item)
		acc = ZipWithPar(acc, next, func(vs, v Erased) Erased {
			return append(vs.([]Erased), v)
		})
	}
	return acc
}

// Forever repeats e indefinitely. It only terminates by failure or
// interruption.
func Forever(e Effect) Effect {
	return FlatMap(e, func(Erased) Effect { return Then(YieldNow(), Forever(e)) })
}
