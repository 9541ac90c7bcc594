/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package gopool provides a small goroutine worker pool for bursty
// fan-out work, e.g. generating search successors in parallel.
package gopool

import (
	"context"
	"log"
	"runtime/debug"
	"sync/atomic"
)

// Option configures a GoPool.
type Option struct {
	// MaxIdleWorkers caps the workers that keep draining the queue.
	// Workers above the cap run a single task and exit.
	MaxIdleWorkers int

	// TaskChanBuffer is the task queue length. When the queue is full
	// we fall back to a plain `go`, the pool never blocks the caller.
	TaskChanBuffer int
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		MaxIdleWorkers: 128,
		TaskChanBuffer: 128,
	}
}

var defaultGoPool = NewGoPool("__default__", nil)

// Go runs the given func in background.
func Go(f func()) {
	defaultGoPool.Go(f)
}

// CtxGo runs the given func in background, passing ctx to the panic
// handler if one fires.
func CtxGo(ctx context.Context, f func()) {
	defaultGoPool.CtxGo(ctx, f)
}

type task struct {
	ctx context.Context
	f   func()
}

// GoPool runs background tasks on worker goroutines; a worker within
// the idle cap drains queued tasks before exiting, so bursts of small
// tasks share goroutines. The number of workers is not bounded. The zero value is not usable; create
// instances with NewGoPool.
type GoPool struct {
	name string

	workers int32
	maxIdle int32

	panicHandler func(ctx context.Context, r interface{})

	tasks chan task
}

// NewGoPool creates a named worker pool.
func NewGoPool(name string, o *Option) *GoPool {
	if o == nil {
		o = DefaultOption()
	}
	return &GoPool{
		name:    name,
		maxIdle: int32(o.MaxIdleWorkers),
		tasks:   make(chan task, o.TaskChanBuffer),
	}
}

// Go runs the given func in background.
func (p *GoPool) Go(f func()) {
	p.CtxGo(context.Background(), f)
}

// CtxGo runs the given func in background, passing ctx to the panic
// handler if one fires.
func (p *GoPool) CtxGo(ctx context.Context, f func()) {
	select {
	case p.tasks <- task{ctx: ctx, f: f}:
	default:
		// queue full, don't make the caller wait
		go p.runTask(ctx, f)
		return
	}
	if len(p.tasks) == 0 {
		// a live worker already picked it up
		return
	}
	go p.runWorker()
}

// SetPanicHandler installs f for panics escaping pool tasks. The
// default handler logs the value and stack via log.Printf.
func (p *GoPool) SetPanicHandler(f func(ctx context.Context, r interface{})) {
	p.panicHandler = f
}

// CurrentWorkers returns the number of live workers.
func (p *GoPool) CurrentWorkers() int {
	return int(atomic.LoadInt32(&p.workers))
}

func (p *GoPool) runTask(ctx context.Context, f func()) {
	defer func() {
		if r := recover(); r != nil {
			if h := p.panicHandler; h != nil {
				h(ctx, r)
			} else {
				log.Printf("GOPOOL: panic in pool %s: %v: %s", p.name, r, debug.Stack())
			}
		}
	}()
	f()
}

func (p *GoPool) runWorker() {
	id := atomic.AddInt32(&p.workers, 1)
	defer atomic.AddInt32(&p.workers, -1)

	for {
		select {
		case t := <-p.tasks:
			p.runTask(t.ctx, t.f)
		default:
			return
		}
		if id > p.maxIdle {
			// over the idle cap: one task, then out
			return
		}
	}
}
