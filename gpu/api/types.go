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

// Package api holds the entities, collaborator contracts and error taxonomy
// shared by the queue submission packages.
package api

import "fmt"

// QueueType identifies the kind of work a queue accepts.
type QueueType uint32

const (
	QueueTypeUniversal QueueType = iota
	QueueTypeCompute
	QueueTypeDma
	QueueTypeTimer
	QueueTypeCount
)

var queueTypeNames = [...]string{"Universal", "Compute", "Dma", "Timer"}

func (t QueueType) String() string {
	if t < QueueTypeCount {
		return queueTypeNames[t]
	}
	return fmt.Sprintf("QueueType(%d)", uint32(t))
}

// ParseQueueType returns the QueueType with the given name.
func ParseQueueType(s string) (QueueType, bool) {
	for i, n := range queueTypeNames {
		if n == s {
			return QueueType(i), true
		}
	}
	return QueueTypeCount, false
}

// SupportsComputeShader returns true if queues of type t can run compute work.
func (t QueueType) SupportsComputeShader() bool {
	return t == QueueTypeUniversal || t == QueueTypeCompute
}

// EngineType identifies a hardware engine family.
type EngineType uint32

const (
	EngineTypeUniversal EngineType = iota
	EngineTypeCompute
	EngineTypeDma
	EngineTypeTimer
	EngineTypeCount
)

var engineTypeNames = [...]string{"Universal", "Compute", "Dma", "Timer"}

func (t EngineType) String() string {
	if t < EngineTypeCount {
		return engineTypeNames[t]
	}
	return fmt.Sprintf("EngineType(%d)", uint32(t))
}

// ParseEngineType returns the EngineType with the given name.
func ParseEngineType(s string) (EngineType, bool) {
	for i, n := range engineTypeNames {
		if n == s {
			return EngineType(i), true
		}
	}
	return EngineTypeCount, false
}

// SubEngineType identifies the sub-engine a command stream targets.
type SubEngineType uint32

const (
	SubEnginePrimary SubEngineType = iota
	SubEngineConstantEngine
)

// QueuePriority is the scheduling priority of a queue.
type QueuePriority uint32

const (
	QueuePriorityNormal QueuePriority = iota
	QueuePriorityIdle
	QueuePriorityMedium
	QueuePriorityHigh
	QueuePriorityRealtime
)

// SubmitOptMode selects the submission optimisation strategy.
type SubmitOptMode uint32

const (
	SubmitOptModeDefault SubmitOptMode = iota
	SubmitOptModeDisabled
	SubmitOptModeMinKernelSubmits
	SubmitOptModeMinUserModeSubmits
)

// IfhMode is the "infinitely fast hardware" mode. When enabled submissions
// never reach the GPU.
type IfhMode uint32

const (
	IfhModeDisabled IfhMode = iota
	IfhModePal
	IfhModeKmd
)

// RecordState is the recording state of a command buffer.
type RecordState uint32

const (
	RecordStateBuilding RecordState = iota
	RecordStateExecutable
	RecordStateReset
)

// PresentMode selects how an image is presented.
type PresentMode uint32

const (
	PresentModeUnknown PresentMode = iota
	PresentModeWindowed
	PresentModeFullscreen
)

// PresentModeSupport is a bitmask of direct present modes supported by a
// queue type.
type PresentModeSupport uint32

const (
	SupportWindowedPresent PresentModeSupport = 1 << iota
	SupportWindowedPriorBlitPresent
	SupportFullscreenPresent
)

// MaxBlockIfFlippingCount is the maximum number of block-if-flipping memory
// objects in one submission.
const MaxBlockIfFlippingCount = 16

// QueueCreateInfo describes one sub-queue of a queue.
type QueueCreateInfo struct {
	QueueType             QueueType
	EngineType            EngineType
	EngineIndex           uint32
	Priority              QueuePriority
	NumReservedCu         uint32
	PersistentCeRamOffset uint32 // in bytes
	PersistentCeRamSize   uint32 // in dwords
	SubmitOptMode         SubmitOptMode
	WindowedPriorBlit     bool
}

// GpuMemory is a GPU memory object referenced by a submission.
type GpuMemory interface {
	IsFlippable() bool
}

// GpuMemoryRef is a residency reference to a GPU memory object.
type GpuMemoryRef struct {
	Memory   GpuMemory
	ReadOnly bool
}

// DoppRef is a reference to a DOPP desktop texture.
type DoppRef struct {
	Memory   GpuMemory
	ReadOnly bool
}

// CmdBufInfo is optional per-command-buffer information.
type CmdBufInfo struct {
	IsValid       bool
	FrameIndex    uint32
	PrimaryMemory GpuMemory
}

// PerSubQueueSubmitInfo lists the command buffers submitted to one sub-queue.
// CmdBufInfoList may be nil, otherwise it is parallel to CmdBuffers.
type PerSubQueueSubmitInfo struct {
	CmdBufferCount uint32
	CmdBuffers     []CmdBuffer
	CmdBufInfoList []CmdBufInfo
}

// MultiSubmitInfo is a submission spanning one or more sub-queues.
//
// Each list has an explicit count. A positive count with a nil (or short)
// list is a caller error reported by validation.
type MultiSubmitInfo struct {
	PerSubQueueInfoCount uint32
	PerSubQueueInfo      []PerSubQueueSubmitInfo

	GpuMemRefCount uint32
	GpuMemoryRefs  []GpuMemoryRef

	DoppRefCount uint32
	DoppRefs     []DoppRef

	BlockIfFlippingCount uint32
	BlockIfFlipping      []GpuMemory

	FenceCount uint32
	Fences     []Fence

	// DumpSink, if not nil, receives the command chunks of this submission.
	DumpSink DumpSink
}

// MaxPreambleCmdStreams is the maximum number of preamble streams a queue
// context can add to a submission.
const MaxPreambleCmdStreams = 3

// MaxPostambleCmdStreams is the maximum number of postamble streams a queue
// context can add to a submission.
const MaxPostambleCmdStreams = 3

// InternalSubmitInfo is the per-sub-queue data produced by a hardware queue
// context ahead of a submission.
type InternalSubmitInfo struct {
	EngineType             EngineType
	NumPreambleCmdStreams  uint32
	PreambleCmdStreams     [MaxPreambleCmdStreams]CmdStream
	NumPostambleCmdStreams uint32
	PostambleCmdStreams    [MaxPostambleCmdStreams]CmdStream
	PagingFence            uint64
	IsTmzEnabled           bool
	HasPrimShaderWorkload  bool
}

// Preambles returns the preamble streams in use.
func (i *InternalSubmitInfo) Preambles() []CmdStream {
	return i.PreambleCmdStreams[:i.NumPreambleCmdStreams]
}

// Postambles returns the postamble streams in use.
func (i *InternalSubmitInfo) Postambles() []CmdStream {
	return i.PostambleCmdStreams[:i.NumPostambleCmdStreams]
}

// PresentDirectInfo describes a direct present.
type PresentDirectInfo struct {
	PresentMode PresentMode
	SrcImage    Image
	DstImage    Image
	Fullscreen  bool
}

// PresentSwapChainInfo describes a swap chain present.
type PresentSwapChainInfo struct {
	PresentMode PresentMode
	SrcImage    Image
	SwapChain   SwapChain
	ImageIndex  uint32
	NotifyOnly  bool
}

// CmdBufferBuildInfo holds the options for Begin.
type CmdBufferBuildInfo struct {
	OptimizeOneTimeSubmit   bool
	OptimizeExclusiveSubmit bool
}

// CmdBufferCreateInfo describes an internal command buffer.
type CmdBufferCreateInfo struct {
	QueueType  QueueType
	EngineType EngineType
	Internal   bool
}
