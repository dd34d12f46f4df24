// Package parallel provides the fixed-size worker pool used for entity
// traversal.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines with per-worker queues. Workers
// steal from other queues when their own is empty, which balances partitions
// of very different subtree sizes.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// dispatch is held shared while ExecuteAll enqueues and exclusively by
	// Close, so no task is queued after the workers start exiting.
	dispatch sync.RWMutex
}

// SizeFor returns the pool size for a machine: NumCPU minus the threads
// reserved for the tick goroutine and the GPU thread, never below one.
func SizeFor(reserved int) int {
	n := runtime.NumCPU() - reserved
	if n < 1 {
		n = 1
	}
	return n
}

// NewWorkerPool creates and starts a pool. If workers is 0 or negative,
// GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes tasks round-robin and blocks until every task has
// returned: the single barrier the traversal relies on. A panicking task is
// recovered and reported as an error after the barrier. If the pool is
// closed, the tasks run on the calling goroutine. Tasks must not call
// ExecuteAll themselves.
func (p *WorkerPool) ExecuteAll(tasks []func()) error {
	if len(tasks) == 0 {
		return nil
	}
	p.dispatch.RLock()
	if !p.running.Load() {
		p.dispatch.RUnlock()
		var first error
		for _, fn := range tasks {
			if err := runTask(fn); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(len(tasks))
	for i, fn := range tasks {
		task := fn
		wrapped := func() {
			defer wg.Done()
			if err := runTask(task); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}
		p.workQueues[i%p.workers] <- wrapped
	}
	p.dispatch.RUnlock()
	wg.Wait()
	return firstErr
}

func runTask(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker task panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// Close stops accepting work, lets queued work finish, and stops all workers.
// It waits for an ExecuteAll that is still enqueueing. Close is safe to call
// multiple times.
func (p *WorkerPool) Close() {
	p.dispatch.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.dispatch.Unlock()
		return
	}
	close(p.done)
	p.dispatch.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still dispatches to workers.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
