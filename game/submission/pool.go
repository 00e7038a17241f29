package submission

import "context"

// workerPool bounds the number of evaluations running at once. Slots are
// tokens in a buffered channel; acquire blocks until a token is free or
// the context is cancelled.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	p := &workerPool{slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

func (p *workerPool) acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *workerPool) release() {
	p.slots <- struct{}{}
}
