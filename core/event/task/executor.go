// Copyright (C) 2020 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package task

import (
	"context"

	"github.com/itrainl4/pal/core/app/crash"
)

// Handle is a reference to a running task submitted to an executor.
type Handle struct {
	Signal
	err *error
}

// Result waits for the task to complete, and then returns its error.
func (h Handle) Result(ctx context.Context) error {
	if !h.Signal.Wait(ctx) {
		return StopReason(ctx)
	}
	return *h.err
}

// Runner is a function that runs a task prepared by Prepare.
type Runner func()

// Prepare takes a task and builds a handle and runner for it.
// Invoking the runner runs the task and fires the handle's signal.
func Prepare(ctx context.Context, task Task) (Handle, Runner) {
	var result error
	signal, fire := NewSignal()
	runner := func() {
		defer fire(ctx)
		if Stopped(ctx) {
			result = StopReason(ctx)
		} else {
			result = task(ctx)
		}
	}
	return Handle{signal, &result}, runner
}

// Executor is the signature for a function that executes a Task.
type Executor func(ctx context.Context, task Task) Handle

// Direct is a synchronous implementation of an Executor that runs the task
// before returning.
func Direct(ctx context.Context, task Task) Handle {
	h, r := Prepare(ctx, task)
	r()
	return h
}

// Go is an asynchronous implementation of an Executor that starts a new go
// routine to run the task.
func Go(ctx context.Context, task Task) Handle {
	h, r := Prepare(ctx, task)
	crash.Go(r)
	return h
}

// Pool returns an Executor that runs tasks on parallel worker goroutines fed
// from a queue of the given size, and a Task that shuts the pool down.
func Pool(queue int, parallel int) (Executor, Task) {
	q := make(chan Runner, queue)
	for i := 0; i < parallel; i++ {
		crash.Go(func() {
			for r := range q {
				r()
			}
		})
	}
	executor := func(ctx context.Context, task Task) Handle {
		h, r := Prepare(ctx, task)
		q <- r
		return h
	}
	shutdown := func(context.Context) error {
		close(q)
		return nil
	}
	return executor, shutdown
}
