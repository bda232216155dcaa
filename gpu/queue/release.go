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

package queue

import (
	"context"
	"runtime"

	"github.com/itrainl4/pal/core/event/task"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/batch"
)

// ReleaseFromStalledState is called by a semaphore once the value a blocked
// wait of this queue asked for has been signalled. It replays the deferred
// operations in order until the log is empty, an operation fails, or a
// replayed wait blocks again. A release of a queue that is not stalled does
// nothing.
//
// The first failure is returned; the failing operation is consumed and the
// ones behind it stay deferred. The queue then stays stalled with no
// semaphore left to release it, so the caller must call
// ReleaseFromStalledState again to resume it.
func (q *Queue) ReleaseFromStalledState(ctx context.Context) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if !q.stalled.Load() {
		log.D(ctx, "Release of open %v queue %d ignored", q.QueueType(), q.id)
		return nil
	}
	stalls := q.stalls.Load()

	var err error
	stalledAgain := false
	replayed := 0
	for !stalledAgain && err == nil {
		op, ok := q.log.Pop()
		if !ok {
			break
		}
		stalledAgain, err = q.replay(ctx, op)
		replayed++
	}
	// A wait issued past the gate while draining keeps the queue stalled.
	q.stalled.Store(stalledAgain || q.log.Len() > 0 || q.stalls.Load() != stalls)

	switch {
	case err != nil:
		log.W(ctx, "Replay on %v queue %d failed after %d operations (%d left): %v",
			q.QueueType(), q.id, replayed, q.log.Len(), err)
	case stalledAgain:
		log.D(ctx, "%v queue %d stalled again after %d operations", q.QueueType(), q.id, replayed)
	default:
		log.D(ctx, "%v queue %d released after %d operations", q.QueueType(), q.id, replayed)
	}
	return err
}

func (q *Queue) replay(ctx context.Context, op batch.Op) (blocked bool, err error) {
	if op.Kind != batch.Submit {
		return q.execute(ctx, op)
	}
	defer func() {
		op.Package.Free()
		if q.batched.Add(-1) < 0 {
			panic("Negative batched submission count")
		}
	}()
	return false, q.backend.Submit(ctx, op.Package.Info(), op.Package.Internal())
}

// WaitIdle waits for every deferred submission to reach the OS, then for the
// OS to finish all work submitted on the queue. Pending semaphore waits and
// delays are not waited for.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for q.batched.Load() > 0 {
		if task.Stopped(ctx) {
			return task.StopReason(ctx)
		}
		runtime.Gosched()
	}
	return q.backend.WaitIdle(ctx)
}
