// Package dispatch submits broker-bound work through a bounded worker
// pool throttled by live quota signals from prior broker responses.
package dispatch

import (
	"net/http"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/exception"
)

// Task is a zero-argument deferred unit of work. Its error is captured
// per task and surfaced through the result callback; there is no
// automatic retry.
type Task func() error

// Config controls the worker pool.
type Config struct {
	Workers  int
	QueueCap int
	Throttle *Throttle
	Pacing   *obs.Pacing
	// OnResult receives the outcome of every task, nil on success. May be
	// left nil when callers only need logs.
	OnResult func(err error)
}

// Dispatcher is a fixed pool of worker loops pulling tasks off a shared
// queue. FIFO order holds per queue; with more than one worker,
// completion order across tasks is not guaranteed.
type Dispatcher struct {
	cfg   Config
	queue chan Task

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher allocates a stopped dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 64
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NewThrottle()
	}
	return &Dispatcher{
		cfg:   cfg,
		queue: make(chan Task, cfg.QueueCap),
	}
}

// Start spins up the worker loops. Idempotent.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	for range d.cfg.Workers {
		d.wg.Add(1)
		go d.worker(d.stopCh)
	}
}

// Stop signals workers to exit and waits for them. In-flight tasks
// complete; tasks still queued or waiting on throttle are abandoned and
// reported through the result callback. Idempotent, safe when not
// running.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()
	d.wg.Wait()
}

// Submit enqueues a task and returns immediately.
func (d *Dispatcher) Submit(task Task) error {
	if task == nil {
		return exception.ErrDispatchNilTask
	}
	select {
	case d.queue <- task:
		return nil
	default:
		return exception.ErrDispatchQueueFull
	}
}

// UpdateFromHeaders feeds the shared throttle from the most recent broker
// response.
func (d *Dispatcher) UpdateFromHeaders(h http.Header) {
	d.cfg.Throttle.UpdateFromHeaders(h)
}

func (d *Dispatcher) worker(stopCh <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-stopCh:
			d.abandonQueued()
			return
		case task := <-d.queue:
			if !d.waitTurn(stopCh) {
				d.report(exception.ErrDispatchNotRunning)
				d.abandonQueued()
				return
			}
			d.execute(task)
		}
	}
}

// waitTurn blocks until the throttle allows the next call. Returns false
// when the dispatcher stopped during the wait.
func (d *Dispatcher) waitTurn(stopCh <-chan struct{}) bool {
	wait, backoff := d.cfg.Throttle.Delay(time.Now())
	if backoff {
		if d.cfg.Pacing != nil {
			d.cfg.Pacing.IncBackoff()
		}
		logs.Infof("dispatch quota exhausted, backing off %s", wait)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) execute(task Task) {
	if d.cfg.Pacing != nil {
		d.cfg.Pacing.ObserveRequest(time.Now())
	}
	err := runTask(task)
	if err != nil {
		logs.Errorf("dispatch task failed, err: %+v", err)
	}
	d.report(err)
}

func runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("dispatch task panic: %+v", r)
		}
	}()
	return task()
}

func (d *Dispatcher) abandonQueued() {
	for {
		select {
		case <-d.queue:
			d.report(exception.ErrDispatchNotRunning)
		default:
			return
		}
	}
}

func (d *Dispatcher) report(err error) {
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(err)
	}
}
