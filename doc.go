// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fiber provides an effect-based concurrent runtime built on
// lightweight, interruptible, cooperatively scheduled fibers.
//
// An [Effect] is an immutable value describing a computation: pure values,
// failures, sequencing, concurrency, asynchronous suspension, resource
// acquisition, environment access, and per-fiber state. Effects do nothing
// until a [Runtime] interprets them on a [Fiber].
//
// # Design Philosophy
//
// fiber provides:
//   - A reified effect tree: a closed set of node kinds dispatched by a
//     dense type switch in a single evaluation loop
//   - Defunctionalized evaluation with explicit continuation stacks —
//     the host call stack is never used for trampolining
//   - Lock-free fiber state: a single atomic record drives the
//     executing/suspended/done machine via CAS transitions
//
// # Core Types
//
//   - [Effect]: an immutable description of a computation
//   - [Cause]: a composable failure value capturing typed errors,
//     defects, and interruptions
//   - [Exit]: the terminal outcome of a fiber — success or failure
//   - [Fiber]: a running computation with identity, state, and children
//   - [Runtime]: the entry point that executes effects on fibers
//
// # Construction
//
// Minimal constructors:
//
//   - [Succeed]: lift a pure value
//   - [EffectTotal]: suspend a side effect that cannot fail
//   - [EffectPartial]: suspend a side effect that may fail
//   - [Halt]: terminate with a [Cause]
//   - [FlatMap]: sequence two effects
//   - [FoldCauseM]: unified error/success continuation
//
// Derived operations ([Map], [CatchAll], [Ensuring], [Bracket], [Race],
// [Timeout], [ZipPar], ...) all reduce to the primitive node kinds.
//
// # Concurrency
//
//   - [Fork]: start a child fiber, producing a [Fiber] handle
//   - [Fiber.Await] / [Fiber.Join]: observe or adopt a fiber's outcome
//   - [Fiber.InterruptAs]: structured, non-preemptive cancellation
//   - [Promise]: one-shot awaitable result with many awaiters
//   - [Queue]: MPMC queue with back-pressure, dropping, sliding, and
//     unbounded admission policies
//   - [Ref] / [FiberRef]: atomic and fiber-local state
//
// Interruption is cooperative: it is delivered at the next interruptible
// checkpoint (turn start, async exit, failure handling) and never
// preempts a running thunk. [Uninterruptible] regions defer delivery to
// region exit; [Bracket] guarantees release on success, failure, and
// interruption alike.
//
// # Scheduling
//
// Each fiber owns an op budget (the executor's yield op count). A fiber
// that exhausts its budget re-submits its continuation to the executor,
// so no fiber monopolizes an underlying worker. Asynchronous suspension
// uses a per-fiber monotonic epoch so that each async round resumes
// exactly once; stale resumptions are discarded.
//
// # Non-blocking Discipline
//
// Blocking entry points ([Runtime.UnsafeRun]) wait with adaptive backoff
// ([code.hybscloud.com/iox.Backoff]) rather than parking on channels.
// Bounded, dropping, and sliding queues buffer items in lock-free rings
// from [code.hybscloud.com/lfq]; the unbounded queue uses a slice.
package fiber
