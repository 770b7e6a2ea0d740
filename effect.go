// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Erased represents a type-erased value flowing through the effect tree.
// Node kinds carry Erased operands so heterogeneous computations evaluate
// through one homogeneous loop. Concrete types are recovered via type
// assertions at the boundaries.
type Erased = any

// Effect is an immutable description of a computation, reified as a
// closed set of node kinds. The interpreter dispatches on the concrete
// node type; Effect itself is a pure marker interface.
//
// Effects are inert values: they can be stored, composed, and passed
// around freely, and only do work when run on a [Fiber] by a [Runtime].
type Effect interface {
	effect() // unexported marker method
}

// succeedNode is a pure value.
type succeedNode struct{ value Erased }

// totalNode is a suspended side effect that cannot fail.
// A panic inside the thunk becomes a die cause (or is rethrown if fatal).
type totalNode struct{ thunk func() Erased }

// partialNode is a suspended side effect that may fail with an error.
type partialNode struct{ thunk func() (Erased, error) }

// failNode terminates the fiber with a cause, unwinding to the nearest
// fold handler.
type failNode struct{ cause Cause }

// flatMapNode sequences inner before k.
type flatMapNode struct {
	inner Effect
	k     func(Erased) Effect
}

// foldNode is the unified error/success continuation. onFailure receives
// the full cause, including defects and interruptions.
type foldNode struct {
	inner     Effect
	onFailure func(Cause) Effect
	onSuccess func(Erased) Effect
}

// interruptStatusNode runs inner in a region where interruption is
// enabled (flag true) or masked (flag false).
type interruptStatusNode struct {
	flag  bool
	inner Effect
}

// checkInterruptNode observes the current interrupt status.
type checkInterruptNode struct{ k func(bool) Effect }

// asyncNode suspends the fiber until resume is invoked with the
// continuation effect. register may instead return a non-nil effect to
// complete synchronously. blockingOn names fibers this one waits for.
type asyncNode struct {
	register   func(resume func(Effect)) Effect
	blockingOn []FiberID
}

// forkNode starts inner on a new fiber and continues with its handle.
type forkNode struct{ inner Effect }

// daemonStatusNode runs inner in a region where forked children are
// daemon (flag true) or supervised by this fiber (flag false).
type daemonStatusNode struct {
	flag  bool
	inner Effect
}

// checkDaemonNode observes the current daemon status.
type checkDaemonNode struct{ k func(bool) Effect }

// descriptorNode observes the fiber's own descriptor.
type descriptorNode struct{ k func(Descriptor) Effect }

// lockNode runs inner on a designated executor.
type lockNode struct {
	exec  Executor
	inner Effect
}

// yieldNode is a cooperative reschedule point.
type yieldNode struct{}

// accessNode reads the current environment record.
type accessNode struct{ k func(Env) Effect }

// provideNode runs inner with the environment replaced by env.
type provideNode struct {
	env   Env
	inner Effect
}

// fiberRefNewNode allocates a fiber-local variable in the current fiber.
type fiberRefNewNode struct {
	initial Erased
	combine func(parent, child Erased) Erased
}

// fiberRefModifyNode atomically modifies a fiber-local variable.
// f returns (result, newValue).
type fiberRefModifyNode struct {
	ref *FiberRef
	f   func(Erased) (Erased, Erased)
}

// raceWithNode races left against right. The first completion selects
// the winner arm, which receives the winner's exit and the loser's
// fiber handle.
type raceWithNode struct {
	left, right Effect
	leftWins    func(Exit, *Fiber) Effect
	rightWins   func(Exit, *Fiber) Effect
}

// suspendNode defers effect construction until execution, with access
// to the platform and the running fiber's id.
type suspendNode struct{ f func(*Platform, FiberID) Effect }

// traceNode captures the current execution trace.
type traceNode struct{ k func(Trace) Effect }

func (succeedNode) effect()         {}
func (totalNode) effect()           {}
func (partialNode) effect()         {}
func (failNode) effect()            {}
func (flatMapNode) effect()         {}
func (foldNode) effect()            {}
func (interruptStatusNode) effect() {}
func (checkInterruptNode) effect()  {}
func (asyncNode) effect()           {}
func (forkNode) effect()            {}
func (daemonStatusNode) effect()    {}
func (checkDaemonNode) effect()     {}
func (descriptorNode) effect()      {}
func (lockNode) effect()            {}
func (yieldNode) effect()           {}
func (accessNode) effect()          {}
func (provideNode) effect()         {}
func (fiberRefNewNode) effect()     {}
func (fiberRefModifyNode) effect()  {}
func (raceWithNode) effect()        {}
func (suspendNode) effect()         {}
func (traceNode) effect()           {}

// Trace is a point-in-time view of a fiber's execution progress.
type Trace struct {
	// FiberID identifies the fiber the trace was captured on.
	FiberID FiberID

	// StackDepth is the number of pending continuation frames.
	StackDepth int
}

// unitValue is the canonical result of effects run for their side effects.
var unitValue Erased = struct{}{}

// Succeed lifts a pure value into an effect.
func Succeed(v Erased) Effect { return succeedNode{value: v} }

// Unit is the effect that succeeds with the unit value.
func Unit() Effect { return succeedNode{value: unitValue} }

// EffectTotal suspends a side effect that cannot fail.
// A panic inside the thunk becomes a die cause unless the platform
// classifies it fatal.
func EffectTotal(thunk func() Erased) Effect { return totalNode{thunk: thunk} }

// EffectPartial suspends a side effect that may fail with an error.
// The returned error becomes a typed failure cause.
func EffectPartial(thunk func() (Erased, error)) Effect { return partialNode{thunk: thunk} }

// Halt terminates with the given cause.
func Halt(c Cause) Effect { return failNode{cause: c} }

// FailWith terminates with a typed error.
func FailWith(err error) Effect { return failNode{cause: CauseFail(err)} }

// Die terminates with a defect.
func Die(defect any) Effect { return failNode{cause: CauseDie(defect)} }

// FlatMap sequences inner before k, passing inner's result to k.
func FlatMap(inner Effect, k func(Erased) Effect) Effect {
	return flatMapNode{inner: inner, k: k}
}

// FoldCauseM runs inner, continuing with onSuccess on success or with
// onFailure — which sees the full cause — on failure.
func FoldCauseM(inner Effect, onFailure func(Cause) Effect, onSuccess func(Erased) Effect) Effect {
	return foldNode{inner: inner, onFailure: onFailure, onSuccess: onSuccess}
}

// SetInterruptStatus runs inner with interruption enabled or masked.
func SetInterruptStatus(inner Effect, interruptible bool) Effect {
	return interruptStatusNode{flag: interruptible, inner: inner}
}

// Interruptible runs inner in a region where interruption is enabled.
func Interruptible(inner Effect) Effect { return SetInterruptStatus(inner, true) }

// Uninterruptible runs inner in a region where interruption is masked.
// Interruption delivered inside the region becomes pending and is
// delivered at region exit.
func Uninterruptible(inner Effect) Effect { return SetInterruptStatus(inner, false) }

// CheckInterruptStatus observes whether interruption is currently enabled.
func CheckInterruptStatus(k func(bool) Effect) Effect { return checkInterruptNode{k: k} }

// EffectAsync suspends the fiber until resume is invoked with the effect
// to continue with. resume takes effect exactly once per suspension;
// stale invocations are discarded.
func EffectAsync(register func(resume func(Effect)), blockingOn ...FiberID) Effect {
	return asyncNode{
		register: func(resume func(Effect)) Effect {
			register(resume)
			return nil
		},
		blockingOn: blockingOn,
	}
}

// EffectAsyncMaybe is like [EffectAsync], but register may return a
// non-nil effect to complete the suspension synchronously.
func EffectAsyncMaybe(register func(resume func(Effect)) Effect, blockingOn ...FiberID) Effect {
	return asyncNode{register: register, blockingOn: blockingOn}
}

// Fork starts inner on a new fiber and succeeds with its handle (*Fiber).
// Supervision of the child follows the current daemon status.
func Fork(inner Effect) Effect { return forkNode{inner: inner} }

// SetDaemonStatus runs inner with the given daemon status for forks.
func SetDaemonStatus(inner Effect, daemon bool) Effect {
	return daemonStatusNode{flag: daemon, inner: inner}
}

// Daemonize runs inner in a region where forked children are daemon
// fibers: globally tracked and not tied to this fiber's lifetime.
func Daemonize(inner Effect) Effect { return SetDaemonStatus(inner, true) }

// CheckDaemonStatus observes the current daemon status.
func CheckDaemonStatus(k func(bool) Effect) Effect { return checkDaemonNode{k: k} }

// WithDescriptor observes the running fiber's descriptor.
func WithDescriptor(k func(Descriptor) Effect) Effect { return descriptorNode{k: k} }

// Lock runs inner on the designated executor, restoring the previous
// executor afterwards.
func Lock(exec Executor, inner Effect) Effect { return lockNode{exec: exec, inner: inner} }

// YieldNow cooperatively reschedules the fiber.
func YieldNow() Effect { return yieldNode{} }

// Access reads the current environment record.
func Access(k func(Env) Effect) Effect { return accessNode{k: k} }

// Provide runs inner with the environment replaced by env.
func Provide(env Env, inner Effect) Effect { return provideNode{env: env, inner: inner} }

// RaceWith races left against right. The first fiber to complete selects
// the winner callback, which receives the winner's exit and the loser's
// handle. Ties are broken by an atomic latch; ordering between
// simultaneous completions is unspecified but safe.
func RaceWith(left, right Effect, leftWins, rightWins func(Exit, *Fiber) Effect) Effect {
	return raceWithNode{left: left, right: right, leftWins: leftWins, rightWins: rightWins}
}

// EffectSuspendWith defers effect construction until execution. f
// receives the platform and the running fiber's id. A panic inside f
// becomes a die cause.
func EffectSuspendWith(f func(*Platform, FiberID) Effect) Effect { return suspendNode{f: f} }

// EffectSuspend defers effect construction until execution.
func EffectSuspend(f func() Effect) Effect {
	return suspendNode{f: func(*Platform, FiberID) Effect { return f() }}
}

// CaptureTrace captures the current execution trace.
func CaptureTrace() Effect {
	return traceNode{k: func(t Trace) Effect { return succeedNode{value: t} }}
}
