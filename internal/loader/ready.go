package loader

import (
	"sync"

	"taglayer/pkg/types"
)

// readySignal is a settle-once future plus an independent observer list. It
// settles exactly once; observers registered after settlement fire
// immediately with the final snapshot, so no notification is ever missed.
type readySignal struct {
	mu        sync.Mutex
	settled   bool
	final     []types.LoadState
	observers map[int]func([]types.LoadState)
	nextID    int
}

func newReadySignal() *readySignal {
	return &readySignal{observers: make(map[int]func([]types.LoadState))}
}

// settle records the final snapshot and invokes every observer exactly once.
// Later calls are no-ops.
func (r *readySignal) settle(final []types.LoadState) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.final = final
	obs := make([]func([]types.LoadState), 0, len(r.observers))
	for _, fn := range r.observers {
		obs = append(obs, fn)
	}
	r.observers = make(map[int]func([]types.LoadState))
	r.mu.Unlock()
	for _, fn := range obs {
		fn(final)
	}
}

func (r *readySignal) isSettled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

// wait returns a channel that receives the final snapshot once and is then
// closed. Each call gets its own channel, so multiple waiters are fine.
func (r *readySignal) wait() <-chan []types.LoadState {
	ch := make(chan []types.LoadState, 1)
	r.observe(func(final []types.LoadState) {
		ch <- final
		close(ch)
	})
	return ch
}

// observe registers fn, invoking it immediately when already settled.
// The returned func unregisters a not-yet-fired observer.
func (r *readySignal) observe(fn func([]types.LoadState)) func() {
	r.mu.Lock()
	if r.settled {
		final := r.final
		r.mu.Unlock()
		fn(final)
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}
