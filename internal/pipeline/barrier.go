package pipeline

import "context"

// initBarrier is a one-shot latch for dictionaries built asynchronously at
// stage construction. finish must be called exactly once.
type initBarrier struct {
	done chan struct{}
	err  error
}

func newInitBarrier() *initBarrier {
	return &initBarrier{done: make(chan struct{})}
}

func (b *initBarrier) finish(err error) {
	b.err = err
	close(b.done)
}

// wait blocks until the build finished or ctx is cancelled.
func (b *initBarrier) wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
