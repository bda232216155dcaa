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

package api

import "context"

// Backend is the OS submission path of a queue.
// All methods may be called from the caller's goroutine or from a goroutine
// draining deferred work.
type Backend interface {
	// Submit hands a validated submission to the OS scheduler.
	// internal has one entry per sub-queue.
	Submit(ctx context.Context, info *MultiSubmitInfo, internal []InternalSubmitInfo) error
	// WaitIdle blocks until all work handed to Submit has completed.
	WaitIdle(ctx context.Context) error
	// PresentDirect presents an image.
	PresentDirect(ctx context.Context, info *PresentDirectInfo) error
	// Delay inserts a delay of the given milliseconds. If screen is not nil
	// the delay starts at the next vertical sync of the screen.
	Delay(ctx context.Context, delay float32, screen Screen) error
	// AssociateFenceWithLastSubmit ties f to the most recent submission.
	AssociateFenceWithLastSubmit(ctx context.Context, f Fence) error
}

// Waiter is a queue that may be blocked on a semaphore.
type Waiter interface {
	// Stall is called by Semaphore.Wait when the wait blocks, before the
	// waiter is registered and with the semaphore's lock held. It must not
	// block or call back into the semaphore.
	Stall()
	// ReleaseFromStalledState is called once the value a blocked wait asked for
	// has been signalled.
	ReleaseFromStalledState(ctx context.Context) error
}

// Semaphore is a cross-queue synchronization primitive.
//
// A semaphore must not hold its own locks while calling back into a Waiter.
type Semaphore interface {
	// Signal sets the semaphore payload to value and releases the waiters it
	// satisfies.
	Signal(ctx context.Context, value uint64) error
	// Wait asks w to wait for value. If the value has not been signalled yet
	// Wait calls w.Stall, returns blocked and calls w.ReleaseFromStalledState
	// once it is.
	Wait(ctx context.Context, w Waiter, value uint64) (blocked bool, err error)
}

// SubmissionContext is a shared handle to a queue's OS connection.
type SubmissionContext interface {
	TakeReference()
	ReleaseReference(ctx context.Context)
}

// Fence is a client-observable completion token.
type Fence interface {
	// AssociateWithContext ties the fence's completion tracking to c. The
	// fence holds a reference on c until it is re-associated or destroyed.
	AssociateWithContext(ctx context.Context, c SubmissionContext)
	// Status returns nil once the fence is signalled and ErrNotReady before.
	Status() error
	// Reset returns the fence to the unsignalled state.
	Reset(ctx context.Context) error
	Destroy(ctx context.Context)
}

// CmdStreamChunk is one contiguous block of command dwords.
type CmdStreamChunk struct {
	Commands []uint32
}

// CmdStream is an ordered list of command chunks for one sub-engine.
type CmdStream interface {
	SubEngineType() SubEngineType
	Chunks() []CmdStreamChunk
}

// CmdBuffer is a recorded list of GPU commands.
type CmdBuffer interface {
	RecordState() RecordState
	QueueType() QueueType
	IsNested() bool
	// PreSubmit is called once per submission before validation.
	PreSubmit(ctx context.Context) error
	// IncrementSubmitCount notifies the buffer it has been submitted.
	IncrementSubmitCount()
	CmdStreams() []CmdStream
	Begin(ctx context.Context, info CmdBufferBuildInfo) error
	End(ctx context.Context) error
	Destroy(ctx context.Context)
}

// QueueContext is the hardware-specific part of a sub-queue.
type QueueContext interface {
	// PreProcessSubmit fills info ahead of a submission of cmdBufferCount
	// command buffers.
	PreProcessSubmit(ctx context.Context, info *InternalSubmitInfo, cmdBufferCount int) error
	// PostProcessSubmit is called after every successful submission.
	PostProcessSubmit(ctx context.Context)
	// ProcessInitialSubmit fills info for the queue's first submission. It
	// returns ErrUnavailable when the context has no initial submission.
	ProcessInitialSubmit(ctx context.Context, info *InternalSubmitInfo) error
	Destroy(ctx context.Context)
}

// Image is a presentable image.
type Image interface {
	IsPresentable() bool
	IsFlippable() bool
	Memory() GpuMemory
}

// SwapChain schedules presents of its images.
type SwapChain interface {
	ImageCount() uint32
	// Present queues the image for display. It must only issue operations
	// that are safe while the queue is stalled.
	Present(ctx context.Context, info *PresentSwapChainInfo) error
}

// Screen is a display target used for vsync-relative delays.
type Screen interface {
	Name() string
}
