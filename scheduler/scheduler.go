// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package scheduler runs the librarian's background tasks (section 4.6's
// CheckIntegrity, CreateLocalClone, SendClone, ReceiveClone, the three
// hypervisors, and RollingDeletion) each on its own period, generalizing the
// teacher's single channelsType/processTasks actor (tasks/tasks.go) from one
// hardcoded poll loop to a registry of named periodic Tasks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a single named background job with its own period and soft
// timeout, run independently by the Scheduler.
type Task interface {
	Name() string
	Period() time.Duration
	SoftTimeout() time.Duration
	Run(ctx context.Context) error
}

// AlreadyRunningError is returned when Start is called on a Scheduler that
// is already processing tasks.
type AlreadyRunningError struct{}

func (AlreadyRunningError) Error() string { return "scheduler is already running" }

// NotRunningError is returned when Stop is called on a Scheduler that is not
// processing tasks.
type NotRunningError struct{}

func (NotRunningError) Error() string { return "scheduler is not running" }

// Scheduler runs a fixed set of Tasks, each on its own heartbeat goroutine,
// until Stop is called.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler that will run the given tasks once Start is
// called.
func New(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Register adds a task to a Scheduler that has not yet been started.
func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// Start begins running every registered task on its own ticker.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return AlreadyRunningError{}
	}
	s.stop = make(chan struct{})
	s.running = true
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.runLoop(t)
	}
	return nil
}

// Stop signals every running task's loop to exit after its current tick and
// waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return NotRunningError{}
	}
	close(s.stop)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Running reports whether the scheduler is currently processing tasks.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(t Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.Period())
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runOnce(t)
		}
	}
}

func (s *Scheduler) runOnce(t Task) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout := t.SoftTimeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := t.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		slog.Error(fmt.Sprintf("task %s failed after %s: %s", t.Name(), elapsed, err.Error()))
		return
	}
	slog.Debug(fmt.Sprintf("task %s completed in %s", t.Name(), elapsed))
}
