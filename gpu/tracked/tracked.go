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

// Package tracked implements a small pool of internal command buffers that
// are reused once the fence of their last submission has signalled.
package tracked

import (
	"context"
	"sync"
	"time"

	"github.com/itrainl4/pal/core/event/task"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/device"
)

// Entry is a command buffer and the fence tracking its last submission.
type Entry struct {
	CmdBuffer api.CmdBuffer
	Fence     api.Fence
}

// Submitter submits a request through a queue.
type Submitter interface {
	Submit(ctx context.Context, info *api.MultiSubmitInfo) error
}

// Config controls the pool size and the wait for a busy entry at capacity.
type Config struct {
	// Capacity bounds the number of entries. 0 means unbounded.
	Capacity int
	// RetryDelay is the time between readiness checks at capacity.
	RetryDelay time.Duration
	// MaxAttempts bounds the readiness checks at capacity. 0 means no bound.
	MaxAttempts int
}

// Pool is a FIFO of Entries. The front entry is the oldest submission and
// the first candidate for reuse.
type Pool struct {
	resources device.ResourceFactory
	create    api.CmdBufferCreateInfo
	config    Config

	mutex   sync.Mutex
	entries []*Entry
}

// New returns an empty pool creating command buffers described by create.
func New(resources device.ResourceFactory, create api.CmdBufferCreateInfo, config Config) *Pool {
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Millisecond
	}
	return &Pool{resources: resources, create: create, config: config}
}

// Acquire returns an entry whose command buffer has begun recording.
// The entry is moved to the back of the pool.
func (p *Pool) Acquire(ctx context.Context) (*Entry, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var e *Entry
	switch {
	case len(p.entries) > 0 && p.entries[0].Fence.Status() == nil:
		e, p.entries = p.entries[0], p.entries[1:]
	case p.config.Capacity > 0 && len(p.entries) >= p.config.Capacity:
		front := p.entries[0]
		err := task.Retry(ctx, p.config.MaxAttempts, p.config.RetryDelay, func(context.Context) (bool, error) {
			err := front.Fence.Status()
			return err == nil, err
		})
		if err != nil {
			return nil, err
		}
		e, p.entries = front, p.entries[1:]
	default:
		var err error
		if e, err = p.newEntry(ctx); err != nil {
			return nil, err
		}
		log.D(ctx, "Tracked pool grew to %d entries", len(p.entries)+1)
	}
	p.entries = append(p.entries, e)
	if err := e.CmdBuffer.Begin(ctx, api.CmdBufferBuildInfo{OptimizeOneTimeSubmit: true}); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Pool) newEntry(ctx context.Context) (*Entry, error) {
	fence, err := p.resources.CreateInternalFence(ctx)
	if err != nil {
		return nil, err
	}
	cb, err := p.resources.CreateInternalCmdBuffer(ctx, p.create)
	if err != nil {
		fence.Destroy(ctx)
		return nil, err
	}
	return &Entry{CmdBuffer: cb, Fence: fence}, nil
}

// Submit ends recording of e, resets its fence and submits it through q.
// If written is a flippable primary and the platform supports it, the
// submission blocks while written is being flipped.
func (p *Pool) Submit(ctx context.Context, q Submitter, e *Entry, written api.GpuMemory, supportBlockIfFlipping bool) error {
	if err := e.CmdBuffer.End(ctx); err != nil {
		return err
	}
	if err := e.Fence.Reset(ctx); err != nil {
		return err
	}
	info := &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 1,
		PerSubQueueInfo: []api.PerSubQueueSubmitInfo{{
			CmdBufferCount: 1,
			CmdBuffers:     []api.CmdBuffer{e.CmdBuffer},
		}},
		FenceCount: 1,
		Fences:     []api.Fence{e.Fence},
	}
	if supportBlockIfFlipping && written != nil && written.IsFlippable() {
		info.BlockIfFlippingCount = 1
		info.BlockIfFlipping = []api.GpuMemory{written}
	}
	return q.Submit(ctx, info)
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.entries)
}

// Close destroys every entry.
func (p *Pool) Close(ctx context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, e := range p.entries {
		e.CmdBuffer.Destroy(ctx)
		e.Fence.Destroy(ctx)
	}
	p.entries = nil
}
