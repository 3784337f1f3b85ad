package server

import (
	"runtime"
	"sync"
)

// scheduler decides which goroutines run protocol processing. Both
// strategies run a connection to completion in serve and release their
// resources in stop.
type scheduler interface {
	name() string
	start()
	serve(c *connection)
	stop()
}

// threadPerClient processes every frame on the connection's own goroutine.
type threadPerClient struct{}

func (threadPerClient) name() string { return "tpc" }
func (threadPerClient) start()       {}
func (threadPerClient) stop()        {}

func (threadPerClient) serve(c *connection) {
	for {
		frame, err := c.transport.ReadFrame()
		if err != nil {
			c.readFailed(err)
			c.teardown()
			return
		}
		if !c.handle(frame) {
			return
		}
	}
}

// reactor reads on one parked goroutine per connection but runs protocol
// processing on a fixed worker pool. Each connection owns an actor queue so
// its frames run in order and never concurrently.
type reactor struct {
	workers int
	ready   chan *actor
	wg      sync.WaitGroup
}

func newReactor(workers int) *reactor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &reactor{workers: workers}
}

func (r *reactor) name() string { return "reactor" }

func (r *reactor) start() {
	r.ready = make(chan *actor, r.workers)
	for range r.workers {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for a := range r.ready {
				a.drain()
			}
		}()
	}
}

// stop must only run after every serve call has returned.
func (r *reactor) stop() {
	close(r.ready)
	r.wg.Wait()
}

func (r *reactor) serve(c *connection) {
	a := &actor{pool: r}
	for {
		frame, err := c.transport.ReadFrame()
		if err != nil {
			c.readFailed(err)
			a.submit(func() bool {
				c.teardown()
				return false
			})
			break
		}
		if !a.submit(func() bool { return c.handle(frame) }) {
			break
		}
	}
	<-c.done
}

// actor is a per-connection FIFO of tasks drained by at most one worker at a
// time. A task returning false closes the actor and drops what is queued.
type actor struct {
	pool *reactor

	mu        sync.Mutex
	queue     []func() bool
	scheduled bool
	closed    bool
}

// submit queues task. It reports false once the actor is closed.
func (a *actor) submit(task func() bool) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, task)
	schedule := !a.scheduled
	a.scheduled = true
	a.mu.Unlock()

	if schedule {
		a.pool.ready <- a
	}
	return true
}

func (a *actor) drain() {
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			a.scheduled = false
			a.mu.Unlock()
			return
		}
		task := a.queue[0]
		a.queue[0] = nil
		a.queue = a.queue[1:]
		a.mu.Unlock()

		if !task() {
			a.mu.Lock()
			a.closed = true
			a.queue = nil
			a.scheduled = false
			a.mu.Unlock()
			return
		}
	}
}
