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

package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/itrainl4/pal/gpu/api"
)

// Submission is a copy of what a Backend observed in one Submit call.
type Submission struct {
	CmdBuffers      [][]api.CmdBuffer
	CmdBufInfos     [][]api.CmdBufInfo
	GpuMemoryRefs   []api.GpuMemoryRef
	DoppRefs        []api.DoppRef
	BlockIfFlipping []api.GpuMemory
	Fences          []api.Fence
	Internal        []api.InternalSubmitInfo
}

// Delay is a recorded Delay call.
type Delay struct {
	Milliseconds float32
	Screen       string
}

// Backend records every operation handed to the OS path.
type Backend struct {
	// SignalFences signals the fences of each submission once recorded.
	SignalFences bool
	// SubmitHook, if set, is called before each submission is recorded. A
	// non-nil error fails the submission.
	SubmitHook func(ctx context.Context, s *Submission) error

	mutex       sync.Mutex
	events      []string
	submissions []Submission
	presents    []api.PresentDirectInfo
	delays      []Delay
	associated  []api.Fence
	waitIdles   int
}

// Submit implements api.Backend.
func (b *Backend) Submit(ctx context.Context, info *api.MultiSubmitInfo, internal []api.InternalSubmitInfo) error {
	s := Submission{
		GpuMemoryRefs:   append([]api.GpuMemoryRef{}, info.GpuMemoryRefs[:info.GpuMemRefCount]...),
		DoppRefs:        append([]api.DoppRef{}, info.DoppRefs[:info.DoppRefCount]...),
		BlockIfFlipping: append([]api.GpuMemory{}, info.BlockIfFlipping[:info.BlockIfFlippingCount]...),
		Fences:          append([]api.Fence{}, info.Fences[:info.FenceCount]...),
		Internal:        append([]api.InternalSubmitInfo{}, internal...),
	}
	for _, sq := range info.PerSubQueueInfo[:info.PerSubQueueInfoCount] {
		s.CmdBuffers = append(s.CmdBuffers, append([]api.CmdBuffer{}, sq.CmdBuffers[:sq.CmdBufferCount]...))
		var infos []api.CmdBufInfo
		if sq.CmdBufInfoList != nil {
			infos = append(infos, sq.CmdBufInfoList[:sq.CmdBufferCount]...)
		}
		s.CmdBufInfos = append(s.CmdBufInfos, infos)
	}
	if b.SubmitHook != nil {
		if err := b.SubmitHook(ctx, &s); err != nil {
			return err
		}
	}
	b.mutex.Lock()
	b.submissions = append(b.submissions, s)
	b.events = append(b.events, "submit "+describe(s))
	b.mutex.Unlock()
	if b.SignalFences {
		for _, f := range s.Fences {
			if f, ok := f.(*Fence); ok {
				f.Signal()
			}
		}
	}
	return nil
}

func describe(s Submission) string {
	out := ""
	for _, list := range s.CmdBuffers {
		for _, cb := range list {
			if out != "" {
				out += ","
			}
			out += fmt.Sprint(cb)
		}
	}
	return out
}

// WaitIdle implements api.Backend.
func (b *Backend) WaitIdle(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.waitIdles++
	return nil
}

// PresentDirect implements api.Backend.
func (b *Backend) PresentDirect(ctx context.Context, info *api.PresentDirectInfo) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.presents = append(b.presents, *info)
	b.events = append(b.events, "present")
	return nil
}

// Delay implements api.Backend.
func (b *Backend) Delay(ctx context.Context, delay float32, screen api.Screen) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d := Delay{Milliseconds: delay}
	if screen != nil {
		d.Screen = screen.Name()
	}
	b.delays = append(b.delays, d)
	b.events = append(b.events, fmt.Sprintf("delay %v", delay))
	return nil
}

// AssociateFenceWithLastSubmit implements api.Backend.
func (b *Backend) AssociateFenceWithLastSubmit(ctx context.Context, f api.Fence) error {
	b.mutex.Lock()
	b.associated = append(b.associated, f)
	b.events = append(b.events, fmt.Sprintf("fence %v", f))
	b.mutex.Unlock()
	if ff, ok := f.(*Fence); ok && b.SignalFences {
		ff.Signal()
	}
	return nil
}

// Events returns a description of every operation, in order.
func (b *Backend) Events() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]string{}, b.events...)
}

// Submissions returns the recorded submissions.
func (b *Backend) Submissions() []Submission {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]Submission{}, b.submissions...)
}

// Presents returns the recorded direct presents.
func (b *Backend) Presents() []api.PresentDirectInfo {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]api.PresentDirectInfo{}, b.presents...)
}

// Delays returns the recorded delays.
func (b *Backend) Delays() []Delay {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]Delay{}, b.delays...)
}

// Associated returns the fences passed to AssociateFenceWithLastSubmit.
func (b *Backend) Associated() []api.Fence {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]api.Fence{}, b.associated...)
}

// WaitIdles returns the number of WaitIdle calls.
func (b *Backend) WaitIdles() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.waitIdles
}
