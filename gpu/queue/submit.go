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

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/batch"
	"github.com/itrainl4/pal/gpu/pack"
	"github.com/itrainl4/pal/gpu/validate"
)

// Submit submits the command buffers described by info. If the queue is
// stalled the submission is copied and deferred until the queue is released.
func (q *Queue) Submit(ctx context.Context, info *api.MultiSubmitInfo) error {
	return q.SubmitInternal(ctx, info, false)
}

// SubmitInternal is Submit for callers that may be replaying deferred work.
// If postBatching is true the submission is executed immediately regardless
// of the stalled state.
func (q *Queue) SubmitInternal(ctx context.Context, info *api.MultiSubmitInfo, postBatching bool) error {
	if info == nil || info.PerSubQueueInfo == nil {
		return api.ErrInvalidPointer
	}
	for _, sq := range info.PerSubQueueInfo[:min(int(info.PerSubQueueInfoCount), len(info.PerSubQueueInfo))] {
		for _, cb := range sq.CmdBuffers[:min(int(sq.CmdBufferCount), len(sq.CmdBuffers))] {
			if cb == nil {
				continue
			}
			if err := cb.PreSubmit(ctx); err != nil {
				return err
			}
		}
	}
	if err := validate.Submit(q, info, validate.Platform{
		SupportBlockIfFlipping: q.dev.Properties.SupportBlockIfFlipping,
	}); err != nil {
		return err
	}

	count := int(info.PerSubQueueInfoCount)
	internal := make([]api.InternalSubmitInfo, max(count, 1))
	if count > 0 {
		for i := 0; i < count; i++ {
			n := int(info.PerSubQueueInfo[i].CmdBufferCount)
			if err := q.infos[i].Context.PreProcessSubmit(ctx, &internal[i], n); err != nil {
				return err
			}
		}
	} else if err := q.infos[0].Context.PreProcessSubmit(ctx, &internal[0], 0); err != nil {
		return err
	}

	q.dumpSubmission(ctx, info, &internal[0])

	if q.ifhMode == api.IfhModeDisabled {
		for _, sq := range info.PerSubQueueInfo[:count] {
			for _, cb := range sq.CmdBuffers[:sq.CmdBufferCount] {
				cb.IncrementSubmitCount()
			}
		}
	}
	for _, f := range info.Fences[:info.FenceCount] {
		f.AssociateWithContext(ctx, q.sc)
	}

	var err error
	if postBatching || !q.stalled.Load() {
		err = q.backend.Submit(ctx, info, internal)
	} else {
		err = q.enqueueSubmit(ctx, info, internal)
	}
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		q.infos[i].Context.PostProcessSubmit(ctx)
	}
	return nil
}

// enqueueSubmit defers a submission, or executes it directly if the queue
// was released after the caller saw it stalled.
func (q *Queue) enqueueSubmit(ctx context.Context, info *api.MultiSubmitInfo, internal []api.InternalSubmitInfo) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if !q.stalled.Load() {
		return q.backend.Submit(ctx, info, internal)
	}
	p, err := pack.New(ctx, q.allocator, info, internal)
	if err != nil {
		return err
	}
	if err := q.log.Push(batch.Op{Kind: batch.Submit, Package: p}); err != nil {
		p.Free()
		return err
	}
	q.batched.Add(1)
	log.D(ctx, "Deferred submission on stalled %v queue %d (%d pending)", q.QueueType(), q.id, q.log.Len())
	return nil
}

// SubmitFence submits no work but signals f once all prior work on the queue
// has completed.
func (q *Queue) SubmitFence(ctx context.Context, f api.Fence) error {
	return q.Submit(ctx, &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 1,
		PerSubQueueInfo:      []api.PerSubQueueSubmitInfo{{}},
		FenceCount:           1,
		Fences:               []api.Fence{f},
	})
}

// DummySubmit submits the queue's internal empty command buffer.
func (q *Queue) DummySubmit(ctx context.Context, postBatching bool) error {
	if q.dummy == nil {
		return api.ErrUnavailable
	}
	return q.SubmitInternal(ctx, &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 1,
		PerSubQueueInfo: []api.PerSubQueueSubmitInfo{{
			CmdBufferCount: 1,
			CmdBuffers:     []api.CmdBuffer{q.dummy},
		}},
	}, postBatching)
}

// QueryAllocationInfo reports the queue's GPU memory allocations. Queues
// own none, so numEntries is set to 0.
func (q *Queue) QueryAllocationInfo(numEntries *int) error {
	if numEntries == nil {
		return api.ErrInvalidPointer
	}
	*numEntries = 0
	return nil
}
