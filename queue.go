// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spin"
)

// Option is an optional value, the result of non-blocking reads such as
// [Queue.PollQueue].
type Option struct {
	Value   Erased
	Defined bool
}

// Some wraps a present value.
func Some(v Erased) Option { return Option{Value: v, Defined: true} }

// None is the absent value.
func None() Option { return Option{} }

// queuePolicy selects the admission behavior of a full queue.
type queuePolicy uint8

const (
	policyBackPressure queuePolicy = iota
	policyDropping
	policySliding
	policyUnbounded
)

// pendingOffer is a producer suspended on a full back-pressure queue.
// The promise completes with true once the item is admitted.
type pendingOffer struct {
	value   Erased
	promise *Promise
}

// Queue is an MPMC queue connecting fibers. Surviving items are FIFO;
// concurrent offers and takes are linearized by the queue lock. Four
// admission policies exist, differing only in what a full queue does
// with a new item:
//
//   - bounded: the producer suspends until space frees (back-pressure)
//   - dropping: the new item is rejected, Offer returns false
//   - sliding: the oldest item is evicted to admit the new one
//   - unbounded: admission never blocks
//
// Shutdown is idempotent and causes every pending and future operation
// to surface an interrupted cause.
//
// Suspended takers and producers wait on one-shot promises, so an
// interrupted waiter can be unregistered — and an item already awarded
// to an interrupted taker is put back — without losing values. Bounded
// policies store items in a lock-free ring from lfq; the spin lock
// linearizes ring access with the two wait lists.
type Queue struct {
	mu       spin.Lock
	policy   queuePolicy
	capacity int

	ring     *lfq.MPMC[Erased] // bounded policies
	overflow []Erased          // unbounded policy

	takers    []*Promise
	producers []pendingOffer

	down     bool
	shutdown *Promise

	// size mirrors the item count for lock-free Size reads.
	size atomix.Uint32
}

func newQueue(policy queuePolicy, capacity int) *Queue {
	q := &Queue{policy: policy, capacity: capacity, shutdown: NewPromise()}
	if policy != policyUnbounded {
		ringCapacity := capacity
		if ringCapacity < 4 {
			ringCapacity = 4
		}
		q.ring = &lfq.MPMC[Erased]{}
		q.ring.Init(ringCapacity)
	}
	return q
}

// NewBoundedQueue creates a back-pressure queue with the given capacity:
// producers suspend while the queue is full.
func NewBoundedQueue(capacity int) *Queue { return newQueue(policyBackPressure, capacity) }

// NewDroppingQueue creates a queue that rejects offers while full.
func NewDroppingQueue(capacity int) *Queue { return newQueue(policyDropping, capacity) }

// NewSlidingQueue creates a queue that evicts its oldest item to admit
// an offer while full.
func NewSlidingQueue(capacity int) *Queue { return newQueue(policySliding, capacity) }

// NewUnboundedQueue creates a queue whose offers never block.
func NewUnboundedQueue() *Queue { return newQueue(policyUnbounded, 0) }

// MakeBoundedQueue allocates a back-pressure queue inside an effect.
func MakeBoundedQueue(capacity int) Effect {
	return EffectTotal(func() Erased { return NewBoundedQueue(capacity) })
}

// MakeDroppingQueue allocates a dropping queue inside an effect.
func MakeDroppingQueue(capacity int) Effect {
	return EffectTotal(func() Erased { return NewDroppingQueue(capacity) })
}

// MakeSlidingQueue allocates a sliding queue inside an effect.
func MakeSlidingQueue(capacity int) Effect {
	return EffectTotal(func() Erased { return NewSlidingQueue(capacity) })
}

// MakeUnboundedQueue allocates an unbounded queue inside an effect.
func MakeUnboundedQueue() Effect {
	return EffectTotal(func() Erased { return NewUnboundedQueue() })
}

// Capacity returns the configured capacity; unbounded queues report 0.
func (q *Queue) Capacity() int { return q.capacity }

// enqueueLocked admits v to the buffer, reporting false when full. The
// logical capacity is enforced here: the lfq ring may round its size up.
func (q *Queue) enqueueLocked(v Erased) bool {
	if q.policy == policyUnbounded {
		q.overflow = append(q.overflow, v)
		q.size.Add(1)
		return true
	}
	if int(q.size.Load()) >= q.capacity {
		return false
	}
	if err := q.ring.Enqueue(&v); err != nil {
		return false
	}
	q.size.Add(1)
	return true
}

// dequeueLocked removes the oldest item, reporting false when empty.
func (q *Queue) dequeueLocked() (Erased, bool) {
	if q.policy == policyUnbounded {
		if len(q.overflow) == 0 {
			return nil, false
		}
		v := q.overflow[0]
		q.overflow[0] = nil
		q.overflow = q.overflow[1:]
		q.size.Add(^uint32(0))
		return v, true
	}
	v, err := q.ring.Dequeue()
	if err != nil {
		return nil, false
	}
	q.size.Add(^uint32(0))
	return v, true
}

// admitProducersLocked moves suspended producers into freed buffer
// slots, completing their promises. Runs under the queue lock so that
// admission linearizes with the wait list.
func (q *Queue) admitProducersLocked() {
	for len(q.producers) > 0 {
		p := q.producers[0]
		if !q.enqueueLocked(p.value) {
			return
		}
		q.producers[0] = pendingOffer{}
		q.producers = q.producers[1:]
		p.promise.Done(ExitSucceed(true))
	}
}

// queueInterrupted is what shut-down queue operations surface.
func queueInterrupted(id FiberID) Effect {
	return Halt(CauseInterrupt(id))
}

// Offer admits v under the queue's policy. The effect succeeds with a
// boolean: whether the item was admitted. Only the back-pressure policy
// suspends; dropping returns false when full.
func (q *Queue) Offer(v Erased) Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		q.mu.Lock()
		if q.down {
			q.mu.Unlock()
			return queueInterrupted(id)
		}
		// Pair with a waiting taker before touching the buffer: the item
		// bypasses the ring entirely. Delivery happens under the lock so
		// taker unregistration observes a completed promise.
		if len(q.takers) > 0 {
			taker := q.takers[0]
			q.takers[0] = nil
			q.takers = q.takers[1:]
			taker.Done(ExitSucceed(v))
			q.mu.Unlock()
			return Succeed(true)
		}
		switch q.policy {
		case policyBackPressure:
			if q.enqueueLocked(v) {
				q.mu.Unlock()
				return Succeed(true)
			}
			waiter := NewPromise()
			q.producers = append(q.producers, pendingOffer{value: v, promise: waiter})
			q.mu.Unlock()
			return OnInterrupt(waiter.Await(), q.unregisterProducer(waiter))
		case policyDropping:
			ok := q.enqueueLocked(v)
			q.mu.Unlock()
			return Succeed(ok)
		case policySliding:
			for !q.enqueueLocked(v) {
				if _, ok := q.dequeueLocked(); !ok {
					break
				}
			}
			q.mu.Unlock()
			return Succeed(true)
		default: // unbounded
			q.enqueueLocked(v)
			q.mu.Unlock()
			return Succeed(true)
		}
	})
}

// OfferAll admits the items in order under the queue's policy and
// succeeds with the rejected leftovers (empty unless dropping).
func (q *Queue) OfferAll(items []Erased) Effect {
	return EffectSuspend(func() Effect {
		leftovers := []Erased{}
		var loop func(i int) Effect
		loop = func(i int) Effect {
			if i == len(items) {
				return Succeed(leftovers)
			}
			return FlatMap(q.Offer(items[i]), func(admitted Erased) Effect {
				if !admitted.(bool) {
					leftovers = append(leftovers, items[i])
				}
				return loop(i + 1)
			})
		}
		return loop(0)
	})
}

// Take removes and returns the oldest item, suspending until one is
// available or the queue shuts down.
func (q *Queue) Take() Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		q.mu.Lock()
		if q.down {
			q.mu.Unlock()
			return queueInterrupted(id)
		}
		if v, ok := q.dequeueLocked(); ok {
			q.admitProducersLocked()
			q.mu.Unlock()
			return Succeed(v)
		}
		waiter := NewPromise()
		q.takers = append(q.takers, waiter)
		q.mu.Unlock()
		return OnInterrupt(waiter.Await(), q.unregisterTaker(waiter))
	})
}

// unregisterTaker removes an interrupted taker from the wait list. An
// item already awarded to the taker is put back so it is not lost.
func (q *Queue) unregisterTaker(waiter *Promise) Effect {
	return EffectTotal(func() Erased {
		q.mu.Lock()
		removed := false
		for i, t := range q.takers {
			if t == waiter {
				q.takers = append(q.takers[:i], q.takers[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			if exit, done := waiter.Poll(); done {
				if v, ok := exit.Value(); ok {
					q.putBackLocked(v)
				}
			}
		}
		q.mu.Unlock()
		return unitValue
	})
}

// putBackLocked returns an awarded-but-unconsumed item to the queue:
// first to a waiting taker, otherwise to the buffer.
func (q *Queue) putBackLocked(v Erased) {
	if len(q.takers) > 0 {
		taker := q.takers[0]
		q.takers[0] = nil
		q.takers = q.takers[1:]
		taker.Done(ExitSucceed(v))
		return
	}
	q.enqueueLocked(v)
}

// unregisterProducer removes an interrupted producer from the wait
// list. An already-admitted item stays: admission had committed.
func (q *Queue) unregisterProducer(waiter *Promise) Effect {
	return EffectTotal(func() Erased {
		q.mu.Lock()
		for i, p := range q.producers {
			if p.promise == waiter {
				q.producers = append(q.producers[:i], q.producers[i+1:]...)
				break
			}
		}
		q.mu.Unlock()
		return unitValue
	})
}

// TakeAll removes and returns every item without suspending.
func (q *Queue) TakeAll() Effect {
	return q.takeBatch(-1)
}

// TakeUpTo removes and returns at most n items without suspending.
func (q *Queue) TakeUpTo(n int) Effect {
	return q.takeBatch(n)
}

func (q *Queue) takeBatch(limit int) Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		q.mu.Lock()
		if q.down {
			q.mu.Unlock()
			return queueInterrupted(id)
		}
		out := []Erased{}
		for limit < 0 || len(out) < limit {
			v, ok := q.dequeueLocked()
			if !ok {
				break
			}
			out = append(out, v)
		}
		q.admitProducersLocked()
		q.mu.Unlock()
		return Succeed(out)
	})
}

// PollQueue removes and returns the oldest item if one is present,
// without suspending.
func (q *Queue) PollQueue() Effect {
	return FlatMap(q.TakeUpTo(1), func(v Erased) Effect {
		items := v.([]Erased)
		if len(items) == 0 {
			return Succeed(None())
		}
		return Succeed(Some(items[0]))
	})
}

// Size succeeds with the number of buffered items. Reads the mirrored
// counter without taking the lock.
func (q *Queue) Size() Effect {
	return EffectTotal(func() Erased { return int(q.size.Load()) })
}

// IsShutdown succeeds with whether the queue has been shut down.
func (q *Queue) IsShutdown() Effect {
	return EffectTotal(func() Erased { return q.shutdown.IsDone() })
}

// Shutdown shuts the queue down: idempotent, and every pending and
// future operation surfaces an interrupted cause attributed to the
// caller.
func (q *Queue) Shutdown() Effect {
	return EffectSuspendWith(func(_ *Platform, id FiberID) Effect {
		return EffectTotal(func() Erased {
			q.mu.Lock()
			if q.down {
				q.mu.Unlock()
				return unitValue
			}
			q.down = true
			takers := q.takers
			producers := q.producers
			q.takers = nil
			q.producers = nil
			q.overflow = nil
			q.size.Store(0)
			q.mu.Unlock()
			for _, t := range takers {
				t.Done(ExitInterrupt(id))
			}
			for _, p := range producers {
				p.promise.Done(ExitInterrupt(id))
			}
			q.shutdown.Done(ExitInterrupt(id))
			return unitValue
		})
	})
}

// AwaitShutdown suspends until the queue is shut down.
func (q *Queue) AwaitShutdown() Effect {
	return CatchAllCause(q.shutdown.Await(), func(Cause) Effect { return Unit() })
}
