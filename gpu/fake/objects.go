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

// Package fake provides in-memory implementations of the queue collaborators
// for tests and simulation.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/itrainl4/pal/gpu/api"
)

// Memory is a GPU memory object.
type Memory struct {
	Name      string
	Flippable bool
}

// IsFlippable implements api.GpuMemory.
func (m *Memory) IsFlippable() bool { return m.Flippable }

func (m *Memory) String() string { return m.Name }

// CmdStream is a fixed list of command chunks.
type CmdStream struct {
	Sub       api.SubEngineType
	ChunkList []api.CmdStreamChunk
}

// NewCmdStream returns a stream with one chunk per dword list.
func NewCmdStream(sub api.SubEngineType, chunks ...[]uint32) *CmdStream {
	s := &CmdStream{Sub: sub}
	for _, c := range chunks {
		s.ChunkList = append(s.ChunkList, api.CmdStreamChunk{Commands: c})
	}
	return s
}

// SubEngineType implements api.CmdStream.
func (s *CmdStream) SubEngineType() api.SubEngineType { return s.Sub }

// Chunks implements api.CmdStream.
func (s *CmdStream) Chunks() []api.CmdStreamChunk { return s.ChunkList }

// CmdBuffer is a command buffer with settable state.
type CmdBuffer struct {
	Name    string
	Type    api.QueueType
	Nested  bool
	Streams []api.CmdStream
	// PreSubmitErr is returned by PreSubmit when not nil.
	PreSubmitErr error

	mutex      sync.Mutex
	state      api.RecordState
	preSubmits int
	submits    atomic.Int32
	destroyed  bool
}

// NewCmdBuffer returns an executable command buffer for queues of type t.
func NewCmdBuffer(name string, t api.QueueType) *CmdBuffer {
	return &CmdBuffer{Name: name, Type: t, state: api.RecordStateExecutable}
}

func (c *CmdBuffer) String() string { return c.Name }

// SetRecordState changes the record state.
func (c *CmdBuffer) SetRecordState(s api.RecordState) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.state = s
}

// RecordState implements api.CmdBuffer.
func (c *CmdBuffer) RecordState() api.RecordState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// QueueType implements api.CmdBuffer.
func (c *CmdBuffer) QueueType() api.QueueType { return c.Type }

// IsNested implements api.CmdBuffer.
func (c *CmdBuffer) IsNested() bool { return c.Nested }

// PreSubmit implements api.CmdBuffer.
func (c *CmdBuffer) PreSubmit(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.preSubmits++
	return c.PreSubmitErr
}

// PreSubmits returns the number of PreSubmit calls.
func (c *CmdBuffer) PreSubmits() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.preSubmits
}

// IncrementSubmitCount implements api.CmdBuffer.
func (c *CmdBuffer) IncrementSubmitCount() { c.submits.Add(1) }

// SubmitCount returns the number of IncrementSubmitCount calls.
func (c *CmdBuffer) SubmitCount() int { return int(c.submits.Load()) }

// CmdStreams implements api.CmdBuffer.
func (c *CmdBuffer) CmdStreams() []api.CmdStream { return c.Streams }

// Begin implements api.CmdBuffer.
func (c *CmdBuffer) Begin(ctx context.Context, info api.CmdBufferBuildInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.destroyed {
		return fmt.Errorf("%s: begin after destroy", c.Name)
	}
	c.state = api.RecordStateBuilding
	return nil
}

// End implements api.CmdBuffer.
func (c *CmdBuffer) End(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != api.RecordStateBuilding {
		return fmt.Errorf("%s: end while not building", c.Name)
	}
	c.state = api.RecordStateExecutable
	return nil
}

// Destroy implements api.CmdBuffer.
func (c *CmdBuffer) Destroy(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.destroyed = true
}

// Destroyed returns true once Destroy has been called.
func (c *CmdBuffer) Destroyed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.destroyed
}

// Fence is a fence that is signalled explicitly.
type Fence struct {
	Name string

	mutex     sync.Mutex
	sc        api.SubmissionContext
	signalled bool
	destroyed bool
}

func (f *Fence) String() string { return f.Name }

// AssociateWithContext implements api.Fence.
func (f *Fence) AssociateWithContext(ctx context.Context, c api.SubmissionContext) {
	c.TakeReference()
	f.mutex.Lock()
	old := f.sc
	f.sc = c
	f.mutex.Unlock()
	if old != nil {
		old.ReleaseReference(ctx)
	}
}

// Signal marks the fence as signalled.
func (f *Fence) Signal() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.signalled = true
}

// Status implements api.Fence.
func (f *Fence) Status() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if !f.signalled {
		return api.ErrNotReady
	}
	return nil
}

// Reset implements api.Fence.
func (f *Fence) Reset(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.signalled = false
	return nil
}

// Destroy implements api.Fence. It releases the associated context.
func (f *Fence) Destroy(ctx context.Context) {
	f.mutex.Lock()
	old := f.sc
	f.sc = nil
	f.destroyed = true
	f.mutex.Unlock()
	if old != nil {
		old.ReleaseReference(ctx)
	}
}

// Destroyed returns true once Destroy has been called.
func (f *Fence) Destroyed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.destroyed
}

// Image is a presentable image.
type Image struct {
	Presentable bool
	Flippable   bool
	Mem         *Memory
}

// IsPresentable implements api.Image.
func (i *Image) IsPresentable() bool { return i.Presentable }

// IsFlippable implements api.Image.
func (i *Image) IsFlippable() bool { return i.Flippable }

// Memory implements api.Image.
func (i *Image) Memory() api.GpuMemory {
	if i.Mem == nil {
		return nil
	}
	return i.Mem
}

// SwapChain records presents.
type SwapChain struct {
	Images uint32

	mutex    sync.Mutex
	presents []uint32
}

// ImageCount implements api.SwapChain.
func (s *SwapChain) ImageCount() uint32 { return s.Images }

// Present implements api.SwapChain.
func (s *SwapChain) Present(ctx context.Context, info *api.PresentSwapChainInfo) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.presents = append(s.presents, info.ImageIndex)
	return nil
}

// Presents returns the presented image indices.
func (s *SwapChain) Presents() []uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]uint32{}, s.presents...)
}

// Screen is a named display.
type Screen string

// Name implements api.Screen.
func (s Screen) Name() string { return string(s) }

// Conn is a scheduler connection that counts closes.
type Conn struct{ closes atomic.Int32 }

// Close implements subctx.Conn.
func (c *Conn) Close(context.Context) error {
	c.closes.Add(1)
	return nil
}

// Closes returns the number of Close calls.
func (c *Conn) Closes() int { return int(c.closes.Load()) }
