// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync/atomic"

// Fiber is a unit of concurrent execution: a running effect with its own
// continuation stack, state machine, and supervision links. Fibers are
// created by [Fork] (or by a [Runtime] for the root) and observed through
// [Fiber.Await], [Fiber.Join], and [Fiber.InterruptAs].
//
// The stacks, mask stacks, and fiber-ref map are single-owner: only the
// goroutine currently executing the fiber's turn touches them. Ownership
// transfers through the state machine's CAS transitions (suspend/resume).
type Fiber struct {
	id       FiberID
	state    *stateRef
	platform *Platform

	stack         contStack
	interruptMask boolStack
	daemonMask    boolStack
	envs          []Env
	executors     []Executor
	fiberRefs     map[*FiberRef]Erased

	// runningExecutor is the executor the current turn was submitted on,
	// used to decide when a Lock region entry or exit must shift.
	runningExecutor Executor

	parent   atomic.Pointer[Fiber]
	children childSet
}

// FiberStatus is a coarse view of a fiber's lifecycle phase.
type FiberStatus uint8

const (
	// StatusRunning means the fiber is executing or enqueued.
	StatusRunning FiberStatus = iota
	// StatusSuspended means the fiber awaits an asynchronous resumption.
	StatusSuspended
	// StatusDone means the fiber has completed with an Exit.
	StatusDone
)

// Descriptor is a read-only snapshot of a fiber.
type Descriptor struct {
	ID              FiberID
	Status          FiberStatus
	Interruptors    []FiberID
	InterruptStatus bool
	Children        []FiberID
	Executor        Executor
}

func newFiber(p *Platform, env Env, exec Executor, interruptible, daemon bool, refs map[*FiberRef]Erased) *Fiber {
	f := &Fiber{
		id:              nextFiberID(),
		state:           newStateRef(),
		platform:        p,
		stack:           newContStack(),
		interruptMask:   boolStack{initial: interruptible},
		daemonMask:      boolStack{initial: daemon},
		envs:            []Env{env},
		executors:       []Executor{exec},
		fiberRefs:       refs,
		runningExecutor: exec,
	}
	if f.fiberRefs == nil {
		f.fiberRefs = map[*FiberRef]Erased{}
	}
	return f
}

// ID returns the fiber's identifier.
func (f *Fiber) ID() FiberID { return f.id }

func (f *Fiber) currentEnv() Env           { return f.envs[len(f.envs)-1] }
func (f *Fiber) currentExecutor() Executor { return f.executors[len(f.executors)-1] }
func (f *Fiber) interruptible() bool       { return f.interruptMask.head() }

func (f *Fiber) pushEnv(env Env) { f.envs = append(f.envs, env) }
func (f *Fiber) popEnv() {
	if len(f.envs) > 1 {
		f.envs = f.envs[:len(f.envs)-1]
	}
}

func (f *Fiber) pushExecutor(exec Executor) { f.executors = append(f.executors, exec) }

// popExecutor pops the executor stack and reports whether the restored
// executor differs from the one this turn runs on.
func (f *Fiber) popExecutor() bool {
	if len(f.executors) > 1 {
		f.executors = f.executors[:len(f.executors)-1]
	}
	return f.currentExecutor() != f.runningExecutor
}

// shift submits the continuation cur to exec as a fresh turn.
func (f *Fiber) shift(exec Executor, cur Effect) {
	exec.Submit(func() {
		f.runningExecutor = exec
		f.evalLoop(cur)
	})
}

// shouldInterrupt reports whether pending interruption must be delivered
// at the current checkpoint. Interruption masked here becomes pending
// and is delivered at the next region exit, when the mask pops.
func (f *Fiber) shouldInterrupt() bool {
	return f.interruptMask.head() && f.state.isInterrupted()
}

// evalLoop is the interpreter: one scheduling turn of this fiber. It
// dispatches effect nodes until the fiber completes, suspends, shifts
// executors, or exhausts its op budget and reschedules itself.
func (f *Fiber) evalLoop(cur Effect) {
	f.propagateAncestorInterruption()
	budget := f.runningExecutor.YieldOpCount()
	ops := 0
	for cur != nil {
		if f.shouldInterrupt() {
			if _, isFail := cur.(failNode); !isFail {
				cur = failNode{cause: f.state.interruptedCause()}
			}
		}
		ops++
		if ops > budget {
			f.shift(f.currentExecutor(), cur)
			return
		}
		switch node := cur.(type) {
		case succeedNode:
			cur = f.nextCont(node.value)

		case totalNode:
			v, c := f.runTotal(node.thunk)
			if c != nil {
				cur = failNode{cause: c}
			} else {
				cur = f.nextCont(v)
			}

		case partialNode:
			v, c := f.runPartial(node.thunk)
			if c != nil {
				cur = failNode{cause: c}
			} else {
				cur = f.nextCont(v)
			}

		case flatMapNode:
			// Fast path: apply k in place when inner completes immediately.
			switch inner := node.inner.(type) {
			case succeedNode:
				cur = f.apply(node.k, inner.value)
			case totalNode:
				v, c := f.runTotal(inner.thunk)
				if c != nil {
					cur = failNode{cause: c}
				} else {
					cur = f.apply(node.k, v)
				}
			case partialNode:
				v, c := f.runPartial(inner.thunk)
				if c != nil {
					cur = failNode{cause: c}
				} else {
					cur = f.apply(node.k, v)
				}
			default:
				f.stack.push(applyFrame{k: node.k})
				cur = node.inner
			}

		case failNode:
			handler, found := f.unwind()
			if !found {
				f.done(ExitHalt(f.mergeInterruption(node.cause)))
				return
			}
			cause := node.cause
			cur = f.protect(func() Effect { return handler.onFailure(cause) })
			if f.currentExecutor() != f.runningExecutor {
				f.shift(f.currentExecutor(), cur)
				return
			}

		case foldNode:
			f.stack.push(foldFrame{onFailure: node.onFailure, onSuccess: node.onSuccess})
			cur = node.inner

		case interruptStatusNode:
			f.interruptMask.push(node.flag)
			f.stack.push(interruptExitFrame{})
			cur = node.inner

		case checkInterruptNode:
			flag := f.interruptible()
			cur = f.protect(func() Effect { return node.k(flag) })

		case asyncNode:
			next, suspended := f.enterAsync(node)
			if suspended {
				return
			}
			cur = next

		case forkNode:
			child := f.fork(node.inner)
			cur = f.nextCont(child)

		case daemonStatusNode:
			f.daemonMask.push(node.flag)
			f.stack.push(daemonExitFrame{})
			cur = node.inner

		case checkDaemonNode:
			daemon := f.daemonMask.head()
			cur = f.protect(func() Effect { return node.k(daemon) })

		case descriptorNode:
			desc := f.describe()
			cur = f.protect(func() Effect { return node.k(desc) })

		case lockNode:
			f.pushExecutor(node.exec)
			f.stack.push(executorPopFrame{})
			if node.exec != f.runningExecutor {
				f.shift(node.exec, node.inner)
				return
			}
			cur = node.inner

		case yieldNode:
			f.shift(f.currentExecutor(), succeedNode{value: unitValue})
			return

		case accessNode:
			env := f.currentEnv()
			cur = f.protect(func() Effect { return node.k(env) })

		case provideNode:
			f.pushEnv(node.env)
			f.stack.push(envPopFrame{})
			cur = node.inner

		case fiberRefNewNode:
			ref := &FiberRef{initial: node.initial, combine: node.combine}
			f.fiberRefs[ref] = node.initial
			cur = f.nextCont(ref)

		case fiberRefModifyNode:
			old, ok := f.fiberRefs[node.ref]
			if !ok {
				old = node.ref.initial
			}
			result, updated := node.f(old)
			f.fiberRefs[node.ref] = updated
			cur = f.nextCont(result)

		case traceNode:
			trace := Trace{FiberID: f.id, StackDepth: f.stack.depth()}
			cur = f.protect(func() Effect { return node.k(trace) })

		case raceWithNode:
			f.enterRace(node)
			return

		case suspendNode:
			next, c := f.runSuspend(node.f)
			if c != nil {
				cur = failNode{cause: c}
			} else {
				cur = next
			}

		default:
			f.done(ExitDie("fiber: unknown effect node"))
			return
		}
	}
}

// nextCont pops the continuation stack with a success value. Sentinel
// frames perform their pop actions; an executor pop that lands on a
// different executor shifts the rest of the computation there. Returns
// nil when the turn ends (fiber done or shifted).
func (f *Fiber) nextCont(v Erased) Effect {
	for {
		frame, ok := f.stack.pop()
		if !ok {
			f.done(ExitSucceed(v))
			return nil
		}
		switch fr := frame.(type) {
		case applyFrame:
			return f.apply(fr.k, v)
		case foldFrame:
			return f.apply(fr.onSuccess, v)
		case interruptExitFrame:
			f.interruptMask.pop()
		case daemonExitFrame:
			f.daemonMask.pop()
		case envPopFrame:
			f.popEnv()
		case executorPopFrame:
			if f.popExecutor() {
				f.shift(f.currentExecutor(), succeedNode{value: v})
				return nil
			}
		}
	}
}

// unwind pops the stack to the first fold handler, performing sentinel
// pop actions along the way. While interruption is pending and the
// region is interruptible, fold frames are discarded rather than
// treated as handlers — only masked regions (Ensuring, Bracket release)
// observe the interrupt cause. A fold under a mask always handles, so
// failure processing is never suppressed by the mask itself.
func (f *Fiber) unwind() (foldFrame, bool) {
	for {
		frame, ok := f.stack.pop()
		if !ok {
			return foldFrame{}, false
		}
		switch fr := frame.(type) {
		case foldFrame:
			if !(f.state.isInterrupted() && f.interruptMask.head()) {
				return fr, true
			}
		case interruptExitFrame:
			f.interruptMask.pop()
		case daemonExitFrame:
			f.daemonMask.pop()
		case envPopFrame:
			f.popEnv()
		case executorPopFrame:
			f.popExecutor()
		}
	}
}

// mergeInterruption appends the accumulated interrupt cause to a final
// cause unless already contained, so interruption is never silently lost.
func (f *Fiber) mergeInterruption(c Cause) Cause {
	acc := f.state.interruptedCause()
	if IsEmptyCause(acc) || ContainsCause(c, acc) {
		return c
	}
	return CauseThen(c, acc)
}

// enterAsync publishes the Suspended status for a new async round and
// invokes register. Returns (next, false) when the round completed
// synchronously on this turn, or (nil, true) when the fiber suspended.
func (f *Fiber) enterAsync(node asyncNode) (Effect, bool) {
	epoch := f.state.currentEpoch()
	f.state.enterSuspend(f.interruptible(), epoch, node.blockingOn)
	// Interruption delivered between the checkpoint and the suspension
	// publication would otherwise strand the fiber: reclaim and fail.
	if f.interruptible() && f.state.isInterrupted() && f.state.exitSuspend(epoch) {
		return failNode{cause: f.state.interruptedCause()}, false
	}
	resume := func(next Effect) {
		if f.state.exitSuspend(epoch) {
			f.shift(f.currentExecutor(), next)
		}
	}
	eager, c := f.runRegister(node.register, resume)
	if c != nil {
		if f.state.exitSuspend(epoch) {
			return failNode{cause: c}, false
		}
		f.platform.ReportFailure(c)
		return nil, true
	}
	if eager == nil {
		return nil, true
	}
	if f.state.exitSuspend(epoch) {
		return eager, false
	}
	// A concurrent resume or interruption claimed the round first.
	return nil, true
}

// enterRace forks both arms, suspends on the same epoch machinery as
// async, and lets the first completion claim the continuation. The
// winner's fiber refs are inherited before the user callback runs; the
// loser is surfaced as a handle.
func (f *Fiber) enterRace(node raceWithNode) {
	left := f.fork(Interruptible(node.left))
	right := f.fork(Interruptible(node.right))
	epoch := f.state.currentEpoch()
	f.state.enterSuspend(f.interruptible(), epoch, []FiberID{left.id, right.id})

	var latch atomic.Bool
	arm := func(exit Exit, winner, loser *Fiber, cb func(Exit, *Fiber) Effect) {
		if !latch.CompareAndSwap(false, true) {
			return
		}
		if !f.state.exitSuspend(epoch) {
			return
		}
		next := Then(winner.inheritRefsEffect(), cb(exit, loser))
		f.shift(f.currentExecutor(), next)
	}
	if exit, registered := left.state.addObserver(func(e Exit) {
		arm(e, left, right, node.leftWins)
	}); !registered {
		arm(exit, left, right, node.leftWins)
	}
	if exit, registered := right.state.addObserver(func(e Exit) {
		arm(e, right, left, node.rightWins)
	}); !registered {
		arm(exit, right, left, node.rightWins)
	}
}

// fork builds a child fiber inheriting the environment, executor,
// interrupt status, and a snapshot of the fiber-ref map, registers it
// with the supervisor, and submits its first turn. Submission
// happens-before the child's first instruction.
func (f *Fiber) fork(inner Effect) *Fiber {
	refs := make(map[*FiberRef]Erased, len(f.fiberRefs))
	for ref, v := range f.fiberRefs {
		refs[ref] = v
	}
	daemon := f.daemonMask.head()
	child := newFiber(f.platform, f.currentEnv(), f.currentExecutor(), f.interruptible(), daemon, refs)
	if daemon {
		daemonFibers.add(child)
	} else {
		child.parent.Store(f)
		if !f.children.add(child) {
			// Parent completed concurrently; track globally instead.
			child.parent.Store(nil)
			daemonFibers.add(child)
		}
	}
	child.shift(child.currentExecutor(), inner)
	return child
}

// done performs the terminal transition and the supervision bookkeeping:
// children adoption, daemon deregistration, observer notification, and
// unobserved-failure reporting.
func (f *Fiber) done(exit Exit) {
	observers, ok := f.state.tryDone(exit)
	if !ok {
		return
	}
	f.releaseSupervision()
	if len(observers) == 0 {
		if c, failed := exit.CauseOf(); failed && !InterruptedOnly(c) {
			f.platform.ReportFailure(c)
		}
	}
	for i := len(observers) - 1; i >= 0; i-- {
		observers[i](exit)
	}
	f.stack.release()
}

// apply invokes a user continuation with a value, converting a
// non-fatal panic to a failing effect. The interpreter loop never
// observes a panic from user code.
func (f *Fiber) apply(k func(Erased) Effect, v Erased) Effect {
	return f.protect(func() Effect { return k(v) })
}

// protect runs an effect-producing callback, converting a non-fatal
// panic to a die cause. Fatal panics are reported and rethrown.
func (f *Fiber) protect(run func() Effect) (e Effect) {
	defer func() {
		if r := recover(); r != nil {
			if f.platform.Fatal(r) {
				f.platform.ReportFatal(r)
				panic(r)
			}
			e = failNode{cause: CauseDie(r)}
		}
	}()
	return run()
}

// runTotal runs a total thunk, converting a non-fatal panic to a die
// cause. Fatal panics are reported and rethrown.
func (f *Fiber) runTotal(thunk func() Erased) (v Erased, c Cause) {
	defer func() {
		if r := recover(); r != nil {
			if f.platform.Fatal(r) {
				f.platform.ReportFatal(r)
				panic(r)
			}
			c = CauseDie(r)
		}
	}()
	v = thunk()
	return
}

// runPartial runs a partial thunk: the error return becomes a typed
// failure, a non-fatal panic a die cause.
func (f *Fiber) runPartial(thunk func() (Erased, error)) (v Erased, c Cause) {
	defer func() {
		if r := recover(); r != nil {
			if f.platform.Fatal(r) {
				f.platform.ReportFatal(r)
				panic(r)
			}
			c = CauseDie(r)
		}
	}()
	v, err := thunk()
	if err != nil {
		return nil, CauseFail(err)
	}
	return v, nil
}

// runSuspend constructs a deferred effect, converting a non-fatal panic
// to a die cause.
func (f *Fiber) runSuspend(build func(*Platform, FiberID) Effect) (e Effect, c Cause) {
	defer func() {
		if r := recover(); r != nil {
			if f.platform.Fatal(r) {
				f.platform.ReportFatal(r)
				panic(r)
			}
			c = CauseDie(r)
		}
	}()
	e = build(f.platform, f.id)
	return
}

// runRegister invokes an async registration, converting a non-fatal
// panic to a die cause.
func (f *Fiber) runRegister(register func(func(Effect)) Effect, resume func(Effect)) (e Effect, c Cause) {
	defer func() {
		if r := recover(); r != nil {
			if f.platform.Fatal(r) {
				f.platform.ReportFatal(r)
				panic(r)
			}
			c = CauseDie(r)
		}
	}()
	e = register(resume)
	return
}

// describe builds the fiber's read-only descriptor snapshot.
func (f *Fiber) describe() Descriptor {
	s := f.state.load()
	status := StatusRunning
	switch {
	case s.done:
		status = StatusDone
	case s.suspended:
		status = StatusSuspended
	}
	return Descriptor{
		ID:              f.id,
		Status:          status,
		Interruptors:    Interruptors(s.interrupted),
		InterruptStatus: f.interruptible(),
		Children:        f.children.ids(),
		Executor:        f.currentExecutor(),
	}
}

// Await succeeds with the fiber's Exit once it completes. A late awaiter
// registered after completion resumes in its own scheduling turn.
// Observer invocation order at completion is unspecified.
func (f *Fiber) Await() Effect {
	return EffectAsyncMaybe(func(resume func(Effect)) Effect {
		exit, registered := f.state.addObserver(func(exit Exit) {
			resume(Succeed(exit))
		})
		if !registered {
			return Succeed(exit)
		}
		return nil
	}, f.id)
}

// Join awaits the fiber, inherits its fiber refs into the joiner, and
// propagates its outcome: the child's failure cause becomes the joiner's.
func (f *Fiber) Join() Effect {
	return FlatMap(f.Await(), func(v Erased) Effect {
		exit := v.(Exit)
		return Then(f.inheritRefsEffect(), FromExit(exit))
	})
}

// Poll returns the fiber's Exit if it has completed, without suspending.
func (f *Fiber) Poll() (Exit, bool) { return f.state.poll() }

// InterruptAs delivers interruption attributed to the given fiber id,
// recursively interrupts the fiber's children, and awaits the Exit.
// Interruption is non-preemptive: a running fiber observes it at its
// next interruptible checkpoint.
func (f *Fiber) InterruptAs(by FiberID) Effect {
	return Then(
		EffectTotal(func() Erased {
			f.interruptNow(by)
			return unitValue
		}),
		f.Await(),
	)
}

// Interrupt interrupts the fiber as the calling fiber and awaits its Exit.
func (f *Fiber) Interrupt() Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		return f.InterruptAs(id)
	})
}

// interruptNow accumulates the interrupt cause, wakes the fiber if it is
// suspended interruptible, and recurses into its children.
func (f *Fiber) interruptNow(by FiberID) {
	resume, total := f.state.addInterruption(CauseInterrupt(by))
	if resume {
		f.shift(f.currentExecutor(), failNode{cause: total})
	}
	for _, c := range f.children.snapshot() {
		c.interruptNow(by)
	}
}

// inheritRefsEffect merges this (completed) fiber's ref values into the
// running fiber via each ref's combine function.
func (f *Fiber) inheritRefsEffect() Effect {
	return EffectSuspend(func() Effect {
		eff := Unit()
		for ref, v := range f.fiberRefs {
			ref, childValue := ref, v
			eff = Then(eff, fiberRefModifyNode{ref: ref, f: func(old Erased) (Erased, Erased) {
				return unitValue, ref.combine(old, childValue)
			}})
		}
		return eff
	})
}
