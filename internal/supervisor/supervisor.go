// Package supervisor owns the start/stop/error lifecycle of the
// long-running trading loop.
package supervisor

import (
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/pkg/exception"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Entrypoint is the loop body. It must poll the cancel check at safe
// points and return promptly once it reports true; cancellation is
// cooperative, never preemptive.
type Entrypoint func(canceled func() bool) error

// Status is a non-blocking view of the supervisor.
type Status struct {
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
	LoopAlive bool   `json:"loop_alive"`
}

// Supervisor runs one entrypoint on a dedicated goroutine. Construct one
// per owner; there is no process-wide instance.
type Supervisor struct {
	mu        sync.Mutex
	state     State
	lastError string
	canceled  bool
	loopAlive bool
	done      chan struct{}
}

// New returns a supervisor in the stopped state.
func New() *Supervisor {
	return &Supervisor{state: StateStopped}
}

// Start launches the entrypoint unless a loop is already starting or
// running. The state lock is never held while the entrypoint executes;
// only the flag reads/writes are inside it, so Stop can always get in to
// signal cancellation.
func (s *Supervisor) Start(entrypoint Entrypoint) error {
	if entrypoint == nil {
		return exception.ErrNilEntrypoint
	}

	s.mu.Lock()
	if s.loopAlive {
		// One loop at a time: covers running, starting, and a stop that
		// the old loop has not honored yet.
		s.mu.Unlock()
		return nil
	}
	s.canceled = false
	s.lastError = ""
	s.state = StateStarting
	s.loopAlive = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.run(entrypoint, done)
	return nil
}

func (s *Supervisor) run(entrypoint Entrypoint, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	err := s.invoke(entrypoint)

	s.mu.Lock()
	s.loopAlive = false
	if err != nil {
		s.state = StateError
		s.lastError = err.Error()
	} else {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if err != nil {
		logs.Errorf("trading loop exited, err: %+v", err)
	} else {
		logs.Info("trading loop exited cleanly")
	}
}

// invoke shields the host process from a panicking entrypoint.
func (s *Supervisor) invoke(entrypoint Entrypoint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("trading loop panic: %+v", r)
		}
	}()
	return entrypoint(s.isCanceled)
}

func (s *Supervisor) isCanceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Stop requests cooperative cancellation. Valid only while starting or
// running; a no-op otherwise. It never blocks waiting for the loop to
// exit: a non-cooperating entrypoint leaves the supervisor in stopping
// indefinitely, a caller-visible liveness risk this design accepts.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning && s.state != StateStarting {
		return
	}
	s.canceled = true
	s.state = StateStopping
}

// Join waits up to timeout for the loop goroutine to exit. Returns true
// when the loop is not alive by the deadline. Callers wanting stricter
// shutdown liveness than Stop offers use this explicitly.
func (s *Supervisor) Join(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Status returns the current state without long-held locks.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:     s.state,
		LastError: s.lastError,
		LoopAlive: s.loopAlive,
	}
}
