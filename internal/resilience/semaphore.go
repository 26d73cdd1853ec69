package resilience

import (
	"context"
	"sync"
)

// Semaphore bounds concurrent work. Go runs tasks on their own goroutines once a permit is
// free, and Wait blocks until every task started by Go has returned.
type Semaphore struct {
	slots chan struct{}
	tasks sync.WaitGroup
}

// NewSemaphore creates a semaphore with capacity permits. Non-positive capacities become 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit. Releasing more permits than were acquired is a no-op.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// Go waits for a permit and runs fn on a new goroutine, releasing the permit when fn
// returns. It returns ctx's error without running fn if ctx ends first.
func (s *Semaphore) Go(ctx context.Context, fn func()) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer s.Release()
		fn()
	}()
	return nil
}

// Wait blocks until every task started with Go has finished.
func (s *Semaphore) Wait() {
	s.tasks.Wait()
}

// InFlight returns the number of permits in use.
func (s *Semaphore) InFlight() int {
	return len(s.slots)
}

// Capacity returns the number of permits.
func (s *Semaphore) Capacity() int {
	return cap(s.slots)
}
