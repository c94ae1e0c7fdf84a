// Package task provides a single in-flight background task slot.
//
// A Slot runs at most one goroutine at a time. The consumer starts work with
// Spawn and collects it with a non-blocking Poll once per tick; Poll joins the
// goroutine before the slot accepts new work, so the number of live workers
// never grows with the number of ticks. A panic inside the task is recovered
// and reported as a *PanicError from Poll.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrSlotBusy is returned by Spawn while a task is running or unjoined.
var ErrSlotBusy = errors.New("task slot busy")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Slot holds at most one background task producing a T.
// Spawn and Poll must be called from a single goroutine.
type Slot[T any] struct {
	group  *errgroup.Group
	result chan T
	done   chan struct{}

	live    atomic.Int32
	spawned atomic.Int64
}

// Busy reports whether a task occupies the slot.
func (s *Slot[T]) Busy() bool {
	return s.group != nil
}

// Live returns the number of task goroutines currently running (0 or 1).
func (s *Slot[T]) Live() int {
	return int(s.live.Load())
}

// Spawned returns how many tasks have been started over the slot's lifetime.
func (s *Slot[T]) Spawned() int64 {
	return s.spawned.Load()
}

// Spawn starts fn in the background. It fails with ErrSlotBusy if the
// previous task has not been joined by Poll or Wait.
func (s *Slot[T]) Spawn(ctx context.Context, fn func(ctx context.Context) T) error {
	if s.group != nil {
		return ErrSlotBusy
	}

	g, gctx := errgroup.WithContext(ctx)
	result := make(chan T, 1)
	done := make(chan struct{})

	s.live.Add(1)
	s.spawned.Add(1)
	g.Go(func() (err error) {
		defer close(done)
		defer s.live.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		result <- fn(gctx)
		return nil
	})

	s.group = g
	s.result = result
	s.done = done
	return nil
}

// Poll returns the task's result if it has finished, joining it and freeing
// the slot. ok is false while the task is still running or the slot is empty.
// A recovered panic is returned as err with ok true and a zero result.
func (s *Slot[T]) Poll() (res T, ok bool, err error) {
	if s.group == nil {
		return res, false, nil
	}
	select {
	case <-s.done:
	default:
		return res, false, nil
	}
	return s.join()
}

// Wait blocks until the current task finishes and joins it.
// It returns ok false when the slot is empty.
func (s *Slot[T]) Wait() (res T, ok bool, err error) {
	if s.group == nil {
		return res, false, nil
	}
	<-s.done
	return s.join()
}

func (s *Slot[T]) join() (res T, ok bool, err error) {
	err = s.group.Wait()
	select {
	case res = <-s.result:
	default:
	}
	s.group = nil
	s.result = nil
	s.done = nil
	return res, true, err
}
