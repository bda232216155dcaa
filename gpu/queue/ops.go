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
)

// gate executes op now if the queue is open, or defers it if the queue is
// still stalled once the lock is held.
func (q *Queue) gate(ctx context.Context, op batch.Op, postBatching bool) error {
	if postBatching || !q.stalled.Load() {
		return q.run(ctx, op)
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.stalled.Load() {
		log.D(ctx, "Deferred %v on stalled %v queue %d", op, q.QueueType(), q.id)
		return q.log.Push(op)
	}
	return q.run(ctx, op)
}

// run executes op immediately. A blocked wait has already stalled the queue
// through Stall.
func (q *Queue) run(ctx context.Context, op batch.Op) error {
	blocked, err := q.execute(ctx, op)
	if blocked {
		log.D(ctx, "%v queue %d stalled on %v", q.QueueType(), q.id, op.Semaphore)
	}
	return err
}

// execute runs a non-submit operation. blocked is true if op was a
// semaphore wait that has not been satisfied yet.
func (q *Queue) execute(ctx context.Context, op batch.Op) (blocked bool, err error) {
	switch op.Kind {
	case batch.SignalSemaphore:
		return false, op.Semaphore.Signal(ctx, op.Value)
	case batch.WaitSemaphore:
		return op.Semaphore.Wait(ctx, q, op.Value)
	case batch.PresentDirect:
		return false, q.backend.PresentDirect(ctx, &op.Present)
	case batch.Delay:
		return false, q.backend.Delay(ctx, op.Delay, nil)
	case batch.AssociateFenceWithLastSubmit:
		return false, q.backend.AssociateFenceWithLastSubmit(ctx, op.Fence)
	default:
		panic(op.Kind)
	}
}

// SignalSemaphore signals s with value once all prior work on the queue has
// been issued.
func (q *Queue) SignalSemaphore(ctx context.Context, s api.Semaphore, value uint64) error {
	return q.SignalSemaphoreInternal(ctx, s, value, false)
}

// SignalSemaphoreInternal is SignalSemaphore that bypasses the gate when
// postBatching is true.
func (q *Queue) SignalSemaphoreInternal(ctx context.Context, s api.Semaphore, value uint64, postBatching bool) error {
	if s == nil {
		return api.ErrInvalidPointer
	}
	return q.gate(ctx, batch.Op{Kind: batch.SignalSemaphore, Semaphore: s, Value: value}, postBatching)
}

// WaitSemaphore makes all later work on the queue wait until s reaches
// value. If s has not reached value yet the queue is stalled before
// WaitSemaphore returns.
func (q *Queue) WaitSemaphore(ctx context.Context, s api.Semaphore, value uint64) error {
	return q.WaitSemaphoreInternal(ctx, s, value, false)
}

// WaitSemaphoreInternal is WaitSemaphore that bypasses the gate when
// postBatching is true.
func (q *Queue) WaitSemaphoreInternal(ctx context.Context, s api.Semaphore, value uint64, postBatching bool) error {
	if s == nil {
		return api.ErrInvalidPointer
	}
	return q.gate(ctx, batch.Op{Kind: batch.WaitSemaphore, Semaphore: s, Value: value}, postBatching)
}

// Stall implements api.Waiter. The semaphore calls it before registering the
// wait, so the release for that wait always finds the queue stalled.
func (q *Queue) Stall() {
	q.stalls.Add(1)
	q.stalled.Store(true)
}

// IsPresentModeSupported returns true if the queue can present directly in
// mode.
func (q *Queue) IsPresentModeSupported(mode api.PresentMode) bool {
	t := q.QueueType()
	switch {
	case mode == api.PresentModeFullscreen:
		return q.dev.IsPresentModeSupported(t, api.SupportFullscreenPresent)
	case q.infos[0].CreateInfo.WindowedPriorBlit:
		return q.dev.IsPresentModeSupported(t, api.SupportWindowedPriorBlitPresent)
	default:
		return q.dev.IsPresentModeSupported(t, api.SupportWindowedPresent)
	}
}

// PresentDirect presents info.SrcImage once all prior work on the queue has
// completed. A client present marks the end of a frame.
func (q *Queue) PresentDirect(ctx context.Context, info *api.PresentDirectInfo, isClientPresent bool) error {
	if info == nil {
		return api.ErrInvalidPointer
	}
	if isClientPresent {
		defer q.dev.IncFrameCount()
	}
	if !q.IsPresentModeSupported(info.PresentMode) {
		if info.PresentMode == api.PresentModeWindowed && !q.dev.Properties.IsMasterGpu {
			return api.ErrWindowedPresentUnavailable
		}
		return api.ErrUnavailable
	}
	if isClientPresent && info.SrcImage != nil {
		if err := q.submitPostprocess(ctx, info.SrcImage); err != nil {
			return err
		}
	}
	return q.gate(ctx, batch.Op{Kind: batch.PresentDirect, Present: *info}, false)
}

// PresentSwapChain hands info to its swap chain. The swap chain is always
// called immediately, even while the queue is stalled, so that the image
// index is released before PresentSwapChain returns.
func (q *Queue) PresentSwapChain(ctx context.Context, info *api.PresentSwapChainInfo) error {
	if info == nil {
		return api.ErrInvalidPointer
	}
	var err error
	switch {
	case info.SrcImage == nil || info.SwapChain == nil:
		err = api.ErrInvalidPointer
	case !info.SrcImage.IsPresentable(),
		info.PresentMode == api.PresentModeFullscreen && !info.SrcImage.IsFlippable(),
		info.ImageIndex >= info.SwapChain.ImageCount():
		err = api.ErrInvalidValue
	}
	if err == nil {
		err = q.submitPostprocess(ctx, info.SrcImage)
	}
	if info.NotifyOnly {
		return err
	}
	if err == nil {
		err = info.SwapChain.Present(ctx, info)
	}
	q.dev.IncFrameCount()
	return err
}

// submitPostprocess records the developer overlay on image and submits it
// through the tracked pool.
func (q *Queue) submitPostprocess(ctx context.Context, image api.Image) error {
	if q.tracked == nil || q.dev.Overlay == nil ||
		!q.QueueType().SupportsComputeShader() || !q.dev.Properties.ShowDevDriverOverlay {
		return nil
	}
	e, err := q.tracked.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := q.dev.Overlay.ApplyDevOverlay(ctx, image, e.CmdBuffer); err != nil {
		e.CmdBuffer.End(ctx)
		return err
	}
	return q.tracked.Submit(ctx, q, e, image.Memory(), q.dev.Properties.SupportBlockIfFlipping)
}

// Delay inserts a delay of the given milliseconds before later work on the
// queue. Only timer queues support delays.
func (q *Queue) Delay(ctx context.Context, delay float32) error {
	if q.QueueType() != api.QueueTypeTimer {
		return api.ErrUnavailable
	}
	return q.gate(ctx, batch.Op{Kind: batch.Delay, Delay: delay}, false)
}

// DelayAfterVsync inserts a delay starting at the next vertical sync of
// screen. Delays after vsync are never deferred: on a stalled queue
// DelayAfterVsync fails with api.ErrUnavailable.
func (q *Queue) DelayAfterVsync(ctx context.Context, delay float32, screen api.Screen) error {
	if q.QueueType() != api.QueueTypeTimer {
		return api.ErrUnavailable
	}
	if !q.stalled.Load() {
		return q.backend.Delay(ctx, delay, screen)
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.stalled.Load() {
		log.W(ctx, "Delay after vsync on stalled timer queue %d", q.id)
		return api.ErrUnavailable
	}
	return q.backend.Delay(ctx, delay, screen)
}

// AssociateFenceWithLastSubmit makes f signal with the most recent
// submission on the queue.
func (q *Queue) AssociateFenceWithLastSubmit(ctx context.Context, f api.Fence) error {
	if f == nil {
		return api.ErrInvalidPointer
	}
	f.AssociateWithContext(ctx, q.sc)
	return q.gate(ctx, batch.Op{Kind: batch.AssociateFenceWithLastSubmit, Fence: f}, false)
}
