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

// Package queue implements a GPU command queue that defers its work while it
// is blocked on a cross-queue semaphore wait, and replays that work in order
// once it is released.
//
// Every operation first reads the stalled flag without the lock. If the
// queue looks stalled the flag is re-checked under the lock and the operation
// is either appended to the deferred-operation log or, if the queue was
// released in the meantime, executed directly.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/batch"
	"github.com/itrainl4/pal/gpu/device"
	"github.com/itrainl4/pal/gpu/subctx"
	"github.com/itrainl4/pal/gpu/tracked"
)

// ceRamAlignment is the alignment in bytes of the persistent CE RAM window.
const ceRamAlignment = 32

// SubQueueInfo is the state of one sub-queue.
type SubQueueInfo struct {
	CreateInfo api.QueueCreateInfo
	// Engine is nil for queues without a hardware engine.
	Engine  *device.Engine
	Context api.QueueContext
}

// Options control the optional parts of a Queue.
type Options struct {
	// LogLimit bounds the number of deferred operations. 0 means no bound.
	LogLimit int
	// Dump opens the files submit-time command dumps are written to.
	Dump api.DumpFactory
	// Tracked configures the pool used for internal postprocess submissions.
	Tracked tracked.Config
}

// Queue is a GPU command queue.
//
// The submission methods are expected to be called from one goroutine at a
// time. ReleaseFromStalledState may be called from any goroutine.
type Queue struct {
	dev       *device.Registry
	backend   api.Backend
	sc        *subctx.Context
	allocator alloc.Allocator
	id        uint64
	infos     []SubQueueInfo
	ifhMode   api.IfhMode
	dummy     api.CmdBuffer
	tracked   *tracked.Pool
	dump      api.DumpFactory

	mutex sync.Mutex
	// stalled is written with mutex held, or by Stall from inside a
	// semaphore wait. stalls counts the calls to Stall.
	stalled atomic.Bool
	stalls  atomic.Uint64
	log     *batch.Log
	batched atomic.Int64

	dumpMutex  sync.Mutex
	lastFrame  uint32
	submitID   uint32
	dumpedOnce bool
}

var (
	_ api.Waiter    = (*Queue)(nil)
	_ device.Member = (*Queue)(nil)
)

// New builds a queue of one sub-queue per entry of createInfos, running on
// dev and submitting through backend. The queue owns a new submission context
// wrapping conn. Allocations are accounted against alloc.Get(ctx).
//
// LateInit must be called before the queue is used.
func New(ctx context.Context, dev *device.Registry, backend api.Backend, conn subctx.Conn, createInfos []api.QueueCreateInfo, opts Options) (*Queue, error) {
	if len(createInfos) == 0 {
		return nil, api.ErrInvalidValue
	}
	a := alloc.Get(ctx)
	sc, err := subctx.New(ctx, a, conn)
	if err != nil {
		return nil, err
	}
	q := &Queue{
		dev:       dev,
		backend:   backend,
		sc:        sc,
		allocator: a,
		id:        dev.NewQueueID(),
		ifhMode:   dev.IfhMode(),
		dump:      opts.Dump,
		log:       batch.NewLog(opts.LogLimit),
	}
	if err := q.init(ctx, createInfos, opts); err != nil {
		q.destroyContexts(ctx)
		sc.ReleaseReference(ctx)
		return nil, err
	}
	return q, nil
}

func (q *Queue) init(ctx context.Context, createInfos []api.QueueCreateInfo, opts Options) error {
	settings, props := &q.dev.Settings, &q.dev.Properties
	q.infos = make([]SubQueueInfo, len(createInfos))
	for i, ci := range createInfos {
		if settings.SubmitOptModeOverride != 0 {
			ci.SubmitOptMode = api.SubmitOptMode(settings.SubmitOptModeOverride - 1)
		}
		if ci.Priority != api.QueuePriorityRealtime {
			ci.NumReservedCu = 0
		}
		if ci.EngineType < api.EngineTypeCount && props.Engines[ci.EngineType].SupportPersistentCeRam {
			alignCeRam(&ci)
		} else {
			ci.PersistentCeRamOffset, ci.PersistentCeRamSize = 0, 0
		}
		q.infos[i].CreateInfo = ci
		q.infos[i].Engine = q.dev.Engine(ci.EngineType, ci.EngineIndex)

		qc, err := q.createContext(ctx, &q.infos[i])
		if err != nil {
			return log.Errf(ctx, err, "Creating context for %v sub-queue %d", ci.QueueType, i)
		}
		q.infos[i].Context = qc
	}

	if q.EngineType() != api.EngineTypeTimer {
		if err := q.createDummy(ctx); err != nil {
			return err
		}
	}
	if props.DeveloperMode && q.dev.Resources != nil {
		q.tracked = tracked.New(q.dev.Resources, q.cmdBufferCreateInfo(), opts.Tracked)
	}
	log.D(ctx, "Initialized %v queue %d with %d sub-queues", q.QueueType(), q.id, len(q.infos))
	return nil
}

// alignCeRam aligns the start of the persistent CE RAM window down to
// ceRamAlignment and grows the window so it still covers the requested range.
func alignCeRam(ci *api.QueueCreateInfo) {
	offset := ci.PersistentCeRamOffset &^ (ceRamAlignment - 1)
	diff := ci.PersistentCeRamOffset - offset
	size := (4*ci.PersistentCeRamSize + diff + ceRamAlignment - 1) &^ (ceRamAlignment - 1)
	ci.PersistentCeRamOffset = offset
	ci.PersistentCeRamSize = size / 4
}

func (q *Queue) cmdBufferCreateInfo() api.CmdBufferCreateInfo {
	ci := q.infos[0].CreateInfo
	return api.CmdBufferCreateInfo{QueueType: ci.QueueType, EngineType: ci.EngineType, Internal: true}
}

func (q *Queue) createDummy(ctx context.Context) error {
	if q.dev.Resources == nil {
		return log.Err(ctx, api.ErrUnavailable, "No resource factory for the dummy command buffer")
	}
	cb, err := q.dev.Resources.CreateInternalCmdBuffer(ctx, q.cmdBufferCreateInfo())
	if err != nil {
		return err
	}
	if err := cb.Begin(ctx, api.CmdBufferBuildInfo{OptimizeExclusiveSubmit: true}); err != nil {
		cb.Destroy(ctx)
		return err
	}
	if err := cb.End(ctx); err != nil {
		cb.Destroy(ctx)
		return err
	}
	q.dummy = cb
	return nil
}

// LateInit registers the queue with the device and its engines and performs
// the initial submission requested by any sub-queue context.
func (q *Queue) LateInit(ctx context.Context) error {
	if err := q.dev.AddQueue(ctx, q); err != nil {
		return err
	}
	for _, info := range q.infos {
		if info.Engine != nil {
			if err := info.Engine.AddQueue(q); err != nil {
				return err
			}
		}
	}
	if q.dummy == nil {
		return nil
	}

	internal := make([]api.InternalSubmitInfo, len(q.infos))
	perSubQueue := make([]api.PerSubQueueSubmitInfo, len(q.infos))
	initial := 0
	for i, info := range q.infos {
		if info.Context.ProcessInitialSubmit(ctx, &internal[i]) == nil {
			initial++
			perSubQueue[i] = api.PerSubQueueSubmitInfo{
				CmdBufferCount: 1,
				CmdBuffers:     []api.CmdBuffer{q.dummy},
			}
		}
	}
	if initial == 0 {
		return nil
	}
	if q.ifhMode == api.IfhModeDisabled {
		q.dummy.IncrementSubmitCount()
	}
	info := &api.MultiSubmitInfo{
		PerSubQueueInfoCount: uint32(len(perSubQueue)),
		PerSubQueueInfo:      perSubQueue,
	}
	log.D(ctx, "Initial submission on %d sub-queues", initial)
	return q.backend.Submit(ctx, info, internal)
}

// Destroy waits for the queue to drain and go idle, then releases everything
// the queue owns. The deferred-operation log must be empty.
func (q *Queue) Destroy(ctx context.Context) error {
	q.mutex.Lock()
	pending := q.log.Len()
	q.mutex.Unlock()
	if pending != 0 {
		panic("Destroying a queue with deferred operations")
	}
	err := q.WaitIdle(ctx)
	if q.tracked != nil {
		q.tracked.Close(ctx)
	}
	if q.dummy != nil {
		q.dummy.Destroy(ctx)
		q.dummy = nil
	}
	q.destroyContexts(ctx)
	for _, info := range q.infos {
		if info.Engine != nil {
			info.Engine.RemoveQueue(q)
		}
	}
	q.dev.RemoveQueue(q)
	q.sc.ReleaseReference(ctx)
	return err
}

func (q *Queue) destroyContexts(ctx context.Context) {
	for i := range q.infos {
		if qc := q.infos[i].Context; qc != nil {
			qc.Destroy(ctx)
			q.infos[i].Context = nil
		}
	}
}

// QueueType returns the type of the queue, which is the type of its first
// sub-queue.
func (q *Queue) QueueType() api.QueueType { return q.infos[0].CreateInfo.QueueType }

// EngineType returns the engine type of the first sub-queue.
func (q *Queue) EngineType() api.EngineType { return q.infos[0].CreateInfo.EngineType }

// SubQueueCount returns the number of sub-queues.
func (q *Queue) SubQueueCount() int { return len(q.infos) }

// SubQueue returns the state of sub-queue i.
func (q *Queue) SubQueue(i int) SubQueueInfo { return q.infos[i] }

// ID returns the device-unique identifier of the queue.
func (q *Queue) ID() uint64 { return q.id }

// SubmissionContext returns the queue's submission context.
func (q *Queue) SubmissionContext() *subctx.Context { return q.sc }

// Stalled returns true if the queue is blocked on a semaphore wait.
func (q *Queue) Stalled() bool { return q.stalled.Load() }

// BatchedSubmissions returns the number of deferred submissions.
func (q *Queue) BatchedSubmissions() int { return int(q.batched.Load()) }

// Pending returns the kinds of the deferred operations, oldest first.
func (q *Queue) Pending() []batch.Kind {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.log.Kinds()
}
