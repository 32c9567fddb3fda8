// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package workpool is a pull-based pool of worker goroutines draining a
// queue of closures that is filled up front.
package workpool

import (
	"errors"
	"sync"
)

var ErrStarted = errors.New("workpool: tasks cannot be added after Execute")

type Pool struct {
	mu      sync.Mutex
	tasks   []func()
	next    int
	workers int
	started bool
	wg      sync.WaitGroup
}

// New returns a pool that will run at most workers tasks at once.
func New(workers int) *Pool {
	return &Pool{workers: max(workers, 1)}
}

// Add enqueues a task. All tasks must be added before Execute.
func (p *Pool) Add(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrStarted
	}
	p.tasks = append(p.tasks, task)
	return nil
}

// Len is the number of queued tasks that have not been picked up.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks) - p.next
}

// Execute starts the workers. It does not block; call Wait.
func (p *Pool) Execute() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	n := min(p.workers, len(p.tasks)-p.next)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Wait blocks until every queued task has run.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		task, ok := p.pop()
		if !ok {
			return
		}
		task()
	}
}

func (p *Pool) pop() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.tasks) {
		return nil, false
	}
	task := p.tasks[p.next]
	p.tasks[p.next] = nil
	p.next++
	return task, true
}
