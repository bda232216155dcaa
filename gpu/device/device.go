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

// Package device holds the device-wide state shared by the queues of one GPU:
// settings, engines, queue membership and the frame counter.
package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
)

// DumpMode selects when command buffers are dumped.
type DumpMode uint32

const (
	DumpModeDisabled DumpMode = iota
	DumpModeRecordTime
	DumpModeSubmitTime
)

// Settings are the developer settings of a device.
type Settings struct {
	// SubmitOptModeOverride forces every queue's submit mode when non-zero.
	// The forced mode is SubmitOptModeOverride-1.
	SubmitOptModeOverride uint32
	// IfhGpuMask selects by GPU index the devices that run in IfhMode.
	IfhGpuMask uint32
	IfhMode    api.IfhMode

	CmdBufDumpMode      DumpMode
	CmdBufDumpFormat    api.DumpFormat
	CmdBufDumpDirectory string
	// Submit-time dumps are written for frames in [start, end].
	SubmitTimeCmdBufDumpStartFrame uint32
	SubmitTimeCmdBufDumpEndFrame   uint32
}

// EngineProperties describe one engine family.
type EngineProperties struct {
	NumAvailable           uint32
	SupportPersistentCeRam bool
}

// Properties describe the GPU and the platform it runs on.
type Properties struct {
	GpuIndex    uint32
	FamilyID    uint32
	ERevID      uint32
	IsMasterGpu bool
	IsGfx10     bool

	Engines          [api.EngineTypeCount]EngineProperties
	DirectPresentFor [api.QueueTypeCount]api.PresentModeSupport

	SupportBlockIfFlipping bool
	ShowDevDriverOverlay   bool
	DeveloperMode          bool
}

// Member is a queue registered with a device or engine.
type Member interface {
	QueueType() api.QueueType
}

// Engine is one hardware engine and the queues bound to it.
type Engine struct {
	Type  api.EngineType
	Index uint32

	mutex  sync.Mutex
	queues []Member
}

// AddQueue binds q to the engine.
func (e *Engine) AddQueue(q Member) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.queues = append(e.queues, q)
	return nil
}

// RemoveQueue unbinds q from the engine.
func (e *Engine) RemoveQueue(q Member) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.queues = remove(e.queues, q)
}

// Queues returns the queues bound to the engine.
func (e *Engine) Queues() []Member {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]Member{}, e.queues...)
}

// GfxDevice creates queue contexts on the graphics IP.
type GfxDevice interface {
	CreateQueueContext(ctx context.Context, info api.QueueCreateInfo, e *Engine) (api.QueueContext, error)
}

// OssDevice creates queue contexts on the OS services IP used by DMA queues.
type OssDevice interface {
	CreateQueueContext(ctx context.Context, t api.QueueType) (api.QueueContext, error)
}

// ResourceFactory creates the internal objects queues need.
type ResourceFactory interface {
	CreateInternalCmdBuffer(ctx context.Context, info api.CmdBufferCreateInfo) (api.CmdBuffer, error)
	CreateInternalFence(ctx context.Context) (api.Fence, error)
}

// Overlay records the developer overlay on top of a presented image.
type Overlay interface {
	ApplyDevOverlay(ctx context.Context, image api.Image, cb api.CmdBuffer) error
}

// Registry is the device-wide state. It is owned by the caller and outlives
// every queue created against it.
type Registry struct {
	Settings   Settings
	Properties Properties
	Gfx        GfxDevice
	Oss        OssDevice
	Resources  ResourceFactory
	Overlay    Overlay

	engines [api.EngineTypeCount][]*Engine

	mutex  sync.Mutex
	queues []Member

	frame       atomic.Uint32
	dumpEnabled atomic.Bool
	nextQueueID atomic.Uint64
}

// New builds a Registry with one Engine per available engine in props.
func New(settings Settings, props Properties) *Registry {
	r := &Registry{Settings: settings, Properties: props}
	for t := range props.Engines {
		for i := uint32(0); i < props.Engines[t].NumAvailable; i++ {
			r.engines[t] = append(r.engines[t], &Engine{Type: api.EngineType(t), Index: i})
		}
	}
	return r
}

// Engine returns the engine of type t and index i, or nil if there is none.
func (r *Registry) Engine(t api.EngineType, i uint32) *Engine {
	if t >= api.EngineTypeCount || int(i) >= len(r.engines[t]) {
		return nil
	}
	return r.engines[t][i]
}

// AddQueue registers q with the device.
func (r *Registry) AddQueue(ctx context.Context, q Member) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.queues = append(r.queues, q)
	log.D(ctx, "Registered %v queue (%d total)", q.QueueType(), len(r.queues))
	return nil
}

// RemoveQueue deregisters q.
func (r *Registry) RemoveQueue(q Member) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.queues = remove(r.queues, q)
}

// Queues returns the registered queues.
func (r *Registry) Queues() []Member {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Member{}, r.queues...)
}

// NewQueueID returns a device-unique queue identifier.
func (r *Registry) NewQueueID() uint64 { return r.nextQueueID.Add(1) }

// FrameCount returns the number of client presents so far.
func (r *Registry) FrameCount() uint32 { return r.frame.Load() }

// IncFrameCount moves to the next frame.
func (r *Registry) IncFrameCount() { r.frame.Add(1) }

// IsCmdBufDumpEnabled returns true if dumping was switched on at runtime.
func (r *Registry) IsCmdBufDumpEnabled() bool { return r.dumpEnabled.Load() }

// SetCmdBufDumpEnabled switches runtime dumping on or off.
func (r *Registry) SetCmdBufDumpEnabled(enabled bool) { r.dumpEnabled.Store(enabled) }

// IfhMode returns the IFH mode queues on this device run in.
func (r *Registry) IfhMode() api.IfhMode {
	if r.Settings.IfhGpuMask&(1<<r.Properties.GpuIndex) != 0 {
		return r.Settings.IfhMode
	}
	return api.IfhModeDisabled
}

// IsPresentModeSupported returns true if queues of type t support any of the
// present modes in mode.
func (r *Registry) IsPresentModeSupported(t api.QueueType, mode api.PresentModeSupport) bool {
	return t < api.QueueTypeCount && r.Properties.DirectPresentFor[t]&mode != 0
}

func remove(list []Member, q Member) []Member {
	for i, m := range list {
		if m == q {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
