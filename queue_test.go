// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"
	"time"

	"code.hybscloud.com/fiber"
	"golang.org/x/sync/errgroup"
)

func TestQueueOfferTakeRoundTrip(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(4)
	got := run(t, rt, fiber.Then(q.Offer("hello"), q.Take()))
	if got != "hello" {
		t.Fatalf("got %v, want hello", got)
	}
}

func TestQueueFIFO(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(8)
	effect := fiber.Then(
		q.OfferAll([]fiber.Erased{1, 2, 3}),
		q.TakeAll(),
	)
	got := run(t, rt, effect).([]fiber.Erased)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestQueueBoundedBackpressure(t *testing.T) {
	// Capacity 2, offers A, B, C: the third producer suspends until a
	// take frees a slot; all three arrive in order.
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	effect := fiber.Then(
		q.Offer("A"),
		fiber.Then(
			q.Offer("B"),
			fiber.FlatMap(fiber.Fork(q.Offer("C")), func(v fiber.Erased) fiber.Effect {
				producer := v.(*fiber.Fiber)
				return fiber.Then(
					fiber.Sleep(20*time.Millisecond),
					fiber.FlatMap(q.Size(), func(size fiber.Erased) fiber.Effect {
						if size != 2 {
							return fiber.Die("queue grew past capacity")
						}
						return fiber.FlatMap(q.Take(), func(first fiber.Erased) fiber.Effect {
							return fiber.Then(producer.Join(),
								fiber.FlatMap(q.Take(), func(second fiber.Erased) fiber.Effect {
									return fiber.Map(q.Take(), func(third fiber.Erased) fiber.Erased {
										return []fiber.Erased{first, second, third}
									})
								}))
						})
					}),
				)
			}),
		),
	)
	got := run(t, rt, effect).([]fiber.Erased)
	if got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("got %v, want [A B C]", got)
	}
}

func TestQueueDropping(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewDroppingQueue(2)
	effect := fiber.FlatMap(q.OfferAll([]fiber.Erased{1, 2, 3}), func(v fiber.Erased) fiber.Effect {
		leftovers := v.([]fiber.Erased)
		return fiber.Map(q.TakeAll(), func(items fiber.Erased) fiber.Erased {
			return fiber.Pair{First: leftovers, Second: items}
		})
	})
	got := run(t, rt, effect).(fiber.Pair)
	leftovers := got.First.([]fiber.Erased)
	items := got.Second.([]fiber.Erased)
	if len(leftovers) != 1 || leftovers[0] != 3 {
		t.Fatalf("leftovers = %v, want [3]", leftovers)
	}
	if len(items) != 2 || items[0] != 1 || items[1] != 2 {
		t.Fatalf("items = %v, want [1 2]", items)
	}
}

func TestQueueSliding(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewSlidingQueue(2)
	effect := fiber.Then(
		q.OfferAll([]fiber.Erased{1, 2, 3}),
		q.TakeAll(),
	)
	got := run(t, rt, effect).([]fiber.Erased)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v, want [2 3] (oldest evicted)", got)
	}
}

func TestQueueUnbounded(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewUnboundedQueue()
	items := make([]fiber.Erased, 100)
	for i := range items {
		items[i] = i
	}
	effect := fiber.Then(q.OfferAll(items), q.TakeAll())
	got := run(t, rt, effect).([]fiber.Erased)
	if len(got) != 100 || got[0] != 0 || got[99] != 99 {
		t.Fatalf("unbounded round trip broke: len=%d", len(got))
	}
}

func TestQueuePoll(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	got := run(t, rt, q.PollQueue()).(fiber.Option)
	if got.Defined {
		t.Fatalf("poll on empty queue returned %v", got)
	}
	got = run(t, rt, fiber.Then(q.Offer(5), q.PollQueue())).(fiber.Option)
	if !got.Defined || got.Value != 5 {
		t.Fatalf("poll = %v, want Some(5)", got)
	}
}

func TestQueueTakeUpTo(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(8)
	effect := fiber.Then(
		q.OfferAll([]fiber.Erased{1, 2, 3, 4}),
		q.TakeUpTo(2),
	)
	got := run(t, rt, effect).([]fiber.Erased)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v, want [1 2]", got)
	}
}

func TestQueueTakeSuspendsUntilOffer(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	effect := fiber.FlatMap(fiber.Fork(q.Take()), func(v fiber.Erased) fiber.Effect {
		taker := v.(*fiber.Fiber)
		return fiber.Then(
			fiber.Sleep(10*time.Millisecond),
			fiber.Then(q.Offer("late"), taker.Join()),
		)
	})
	if got := run(t, rt, effect); got != "late" {
		t.Fatalf("got %v, want late", got)
	}
}

func TestQueueShutdownInterruptsPendingTake(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	effect := fiber.FlatMap(fiber.Fork(q.Take()), func(v fiber.Erased) fiber.Effect {
		taker := v.(*fiber.Fiber)
		return fiber.Then(
			fiber.Sleep(10*time.Millisecond),
			fiber.Then(q.Shutdown(), taker.Await()),
		)
	})
	exit := run(t, rt, effect).(fiber.Exit)
	if !exit.Interrupted() {
		t.Fatalf("pending take exit = %v, want interrupted", exit)
	}
}

func TestQueueShutdownIsIdempotentAndSticky(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	run(t, rt, fiber.Then(q.Shutdown(), q.Shutdown()))
	if got := run(t, rt, q.IsShutdown()); got != true {
		t.Fatalf("IsShutdown = %v, want true", got)
	}
	exit := runExit(rt, q.Offer(1))
	c, failed := exit.CauseOf()
	if !failed || !fiber.Interrupted(c) {
		t.Fatalf("offer after shutdown = %v, want interrupted", exit)
	}
	run(t, rt, q.AwaitShutdown())
}

func TestQueueInterruptedTakerDoesNotLoseItems(t *testing.T) {
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(2)
	effect := fiber.FlatMap(fiber.Fork(q.Take()), func(v fiber.Erased) fiber.Effect {
		taker := v.(*fiber.Fiber)
		return fiber.Then(
			fiber.Sleep(10*time.Millisecond),
			fiber.Then(taker.Interrupt(),
				fiber.Then(q.Offer("kept"), q.Take())),
		)
	})
	if got := run(t, rt, effect); got != "kept" {
		t.Fatalf("got %v, want kept", got)
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	const (
		producers = 4
		perFiber  = 50
	)
	rt := newTestRuntime()
	q := fiber.NewBoundedQueue(8)

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		base := p * perFiber
		g.Go(func() error {
			for i := 0; i < perFiber; i++ {
				if _, err := rt.UnsafeRunOrError(q.Offer(base + i)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	seen := make(map[int]bool, producers*perFiber)
	var consumer errgroup.Group
	consumer.Go(func() error {
		for i := 0; i < producers*perFiber; i++ {
			v, err := rt.UnsafeRunOrError(q.Take())
			if err != nil {
				return err
			}
			seen[v.(int)] = true
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("producer failed: %v", err)
	}
	if err := consumer.Wait(); err != nil {
		t.Fatalf("consumer failed: %v", err)
	}
	if len(seen) != producers*perFiber {
		t.Fatalf("saw %d distinct items, want %d", len(seen), producers*perFiber)
	}
}
