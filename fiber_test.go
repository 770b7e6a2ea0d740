// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/fiber"
)

func TestForkJoin(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.FlatMap(fiber.Fork(fiber.Succeed(42)), func(v fiber.Erased) fiber.Effect {
		return v.(*fiber.Fiber).Join()
	}))
	if got != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestJoinPropagatesFailure(t *testing.T) {
	rt := newTestRuntime()
	boom := errors.New("boom")
	exit := runExit(rt, fiber.FlatMap(fiber.Fork(fiber.FailWith(boom)), func(v fiber.Erased) fiber.Effect {
		return v.(*fiber.Fiber).Join()
	}))
	c, failed := exit.CauseOf()
	if !failed {
		t.Fatalf("exit = %v, want failure", exit)
	}
	if err, ok := fiber.FailureOption(c); !ok || err != boom {
		t.Fatalf("cause = %v, want boom", c)
	}
}

func TestAwaitReturnsExitAsValue(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.FlatMap(fiber.Fork(fiber.FailWith(errors.New("boom"))), func(v fiber.Erased) fiber.Effect {
		return v.(*fiber.Fiber).Await()
	}))
	exit, ok := got.(fiber.Exit)
	if !ok {
		t.Fatalf("got %T, want Exit", got)
	}
	if exit.Succeeded() {
		t.Fatalf("child exit = %v, want failure", exit)
	}
}

func TestInterruptCauseCarriesInterruptor(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.WithDescriptor(func(d fiber.Descriptor) fiber.Effect {
		return fiber.FlatMap(fiber.Fork(fiber.Never()), func(v fiber.Erased) fiber.Effect {
			child := v.(*fiber.Fiber)
			return fiber.Map(child.Interrupt(), func(exitV fiber.Erased) fiber.Erased {
				return fiber.Pair{First: d.ID, Second: exitV}
			})
		})
	}))
	pair := got.(fiber.Pair)
	selfID := pair.First.(fiber.FiberID)
	exit := pair.Second.(fiber.Exit)
	c, failed := exit.CauseOf()
	if !failed || !fiber.Interrupted(c) {
		t.Fatalf("child exit = %v, want interrupted", exit)
	}
	if !fiber.ContainsCause(c, fiber.CauseInterrupt(selfID)) {
		t.Fatalf("cause %v does not record interruptor %d", c, selfID)
	}
}

func TestInterruptSleepingFiberSkipsContinuation(t *testing.T) {
	// Fork sleep-then-write; interrupt during the sleep: the write must
	// never happen.
	rt := newTestRuntime()
	ref := fiber.NewRef(true)
	effect := fiber.FlatMap(
		fiber.Fork(fiber.Then(fiber.Sleep(10*time.Hour), ref.Set(false))),
		func(v fiber.Erased) fiber.Effect {
			child := v.(*fiber.Fiber)
			return fiber.Then(
				fiber.Sleep(20*time.Millisecond),
				fiber.Then(child.Interrupt(), ref.Get()),
			)
		},
	)
	if got := run(t, rt, effect); got != true {
		t.Fatalf("interrupted fiber ran its continuation")
	}
}

func TestUninterruptibleDefersDelivery(t *testing.T) {
	rt := newTestRuntime()
	ref := fiber.NewRef(0)
	started := fiber.NewPromise()
	release := fiber.NewPromise()

	body := fiber.Uninterruptible(fiber.Then(
		started.Succeed(fiber.Erased(nil)),
		fiber.Then(release.Await(), ref.Set(1)),
	))
	effect := fiber.FlatMap(fiber.Fork(body), func(v fiber.Erased) fiber.Effect {
		child := v.(*fiber.Fiber)
		return fiber.Then(started.Await(),
			fiber.FlatMap(fiber.Fork(child.Interrupt()), func(k fiber.Erased) fiber.Effect {
				killer := k.(*fiber.Fiber)
				return fiber.Then(
					fiber.Sleep(20*time.Millisecond),
					fiber.Then(release.Succeed(fiber.Erased(nil)),
						fiber.Then(killer.Join(), ref.Get())),
				)
			}))
	})
	// The masked region runs to completion before the interrupt lands.
	if got := run(t, rt, effect); got != 1 {
		t.Fatalf("uninterruptible region was cut short: ref = %v", got)
	}
}

func TestOnInterruptRunsOnInterruptionOnly(t *testing.T) {
	rt := newTestRuntime()
	ref := fiber.NewRef(0)
	bump := ref.Update(func(v fiber.Erased) fiber.Erased { return v.(int) + 1 })

	// Success path: handler must not run.
	run(t, rt, fiber.OnInterrupt(fiber.Succeed(1), bump))
	if got := run(t, rt, ref.Get()); got != 0 {
		t.Fatalf("OnInterrupt handler ran on success")
	}

	// Interruption path: handler runs once.
	effect := fiber.FlatMap(fiber.Fork(fiber.OnInterrupt(fiber.Never(), bump)), func(v fiber.Erased) fiber.Effect {
		child := v.(*fiber.Fiber)
		return fiber.Then(fiber.Sleep(20*time.Millisecond), child.Interrupt())
	})
	run(t, rt, effect)
	if got := run(t, rt, ref.Get()); got != 1 {
		t.Fatalf("OnInterrupt handler ran %v times, want 1", got)
	}
}

func TestInterruptStatusObservation(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.Uninterruptible(fiber.CheckInterruptStatus(func(flag bool) fiber.Effect {
		return fiber.Succeed(flag)
	})))
	if got != false {
		t.Fatalf("mask not observed inside Uninterruptible")
	}
	got = run(t, rt, fiber.CheckInterruptStatus(func(flag bool) fiber.Effect {
		return fiber.Succeed(flag)
	}))
	if got != true {
		t.Fatalf("fibers should start interruptible")
	}
}

func TestDescriptor(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.FlatMap(fiber.Fork(fiber.Never()), func(v fiber.Erased) fiber.Effect {
		child := v.(*fiber.Fiber)
		return fiber.WithDescriptor(func(d fiber.Descriptor) fiber.Effect {
			return fiber.Then(child.Interrupt(), fiber.Succeed(d))
		})
	}))
	d := got.(fiber.Descriptor)
	if d.Status != fiber.StatusRunning {
		t.Fatalf("own status = %v, want running", d.Status)
	}
	if len(d.Children) != 1 {
		t.Fatalf("children = %v, want one", d.Children)
	}
	if !d.InterruptStatus {
		t.Fatalf("descriptor should report interruptible")
	}
}

func TestDaemonForkNotSupervised(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.Daemonize(fiber.FlatMap(fiber.Fork(fiber.Never()), func(v fiber.Erased) fiber.Effect {
		daemon := v.(*fiber.Fiber)
		return fiber.WithDescriptor(func(d fiber.Descriptor) fiber.Effect {
			return fiber.Then(daemon.Interrupt(), fiber.Succeed(len(d.Children)))
		})
	})))
	if got != 0 {
		t.Fatalf("daemon child was registered with parent: %v children", got)
	}
}

func TestCheckDaemonStatus(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.Daemonize(fiber.CheckDaemonStatus(func(d bool) fiber.Effect {
		return fiber.Succeed(d)
	})))
	if got != true {
		t.Fatalf("daemon status not observed")
	}
}

func TestYieldNow(t *testing.T) {
	rt := newTestRuntime()
	got := run(t, rt, fiber.Then(fiber.YieldNow(), fiber.Succeed("after")))
	if got != "after" {
		t.Fatalf("got %v, want after", got)
	}
}

func TestFiberRefInheritanceOnJoin(t *testing.T) {
	// A child forked inside Locally sees the override; joining brings
	// its value back through combine.
	rt := newTestRuntime()
	effect := fiber.FlatMap(fiber.MakeFiberRef(0, nil), func(v fiber.Erased) fiber.Effect {
		ref := v.(*fiber.FiberRef)
		return ref.Locally(10, fiber.FlatMap(fiber.Fork(ref.Get()), func(cv fiber.Erased) fiber.Effect {
			return cv.(*fiber.Fiber).Join()
		}))
	})
	if got := run(t, rt, effect); got != 10 {
		t.Fatalf("forked fiber saw %v, want 10", got)
	}
}

func TestFiberRefLocallyRestores(t *testing.T) {
	rt := newTestRuntime()
	effect := fiber.FlatMap(fiber.MakeFiberRef("outer", nil), func(v fiber.Erased) fiber.Effect {
		ref := v.(*fiber.FiberRef)
		return fiber.Then(ref.Locally("inner", ref.Get()), ref.Get())
	})
	if got := run(t, rt, effect); got != "outer" {
		t.Fatalf("Locally leaked override: got %v", got)
	}
}

func TestFiberRefLocallyRestoresOnFailure(t *testing.T) {
	rt := newTestRuntime()
	boom := errors.New("boom")
	effect := fiber.FlatMap(fiber.MakeFiberRef("outer", nil), func(v fiber.Erased) fiber.Effect {
		ref := v.(*fiber.FiberRef)
		return fiber.Then(
			fiber.CatchAll(ref.Locally("inner", fiber.FailWith(boom)), func(error) fiber.Effect {
				return fiber.Unit()
			}),
			ref.Get(),
		)
	})
	if got := run(t, rt, effect); got != "outer" {
		t.Fatalf("Locally leaked override after failure: got %v", got)
	}
}

func TestFiberRefCombineOnJoin(t *testing.T) {
	rt := newTestRuntime()
	max := func(parent, child fiber.Erased) fiber.Erased {
		if child.(int) > parent.(int) {
			return child
		}
		return parent
	}
	effect := fiber.FlatMap(fiber.MakeFiberRef(5, max), func(v fiber.Erased) fiber.Effect {
		ref := v.(*fiber.FiberRef)
		child := fiber.Then(ref.Set(3), fiber.Unit())
		return fiber.FlatMap(fiber.Fork(child), func(cv fiber.Erased) fiber.Effect {
			return fiber.Then(cv.(*fiber.Fiber).Join(), ref.Get())
		})
	})
	// combine(parent=5, child=3) keeps 5.
	if got := run(t, rt, effect); got != 5 {
		t.Fatalf("combine on join produced %v, want 5", got)
	}
}
