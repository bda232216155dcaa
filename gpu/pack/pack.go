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

// Package pack deep-copies a submission request so that it can be replayed
// after the caller's arrays have been reused or freed.
package pack

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
	"github.com/itrainl4/pal/gpu/api"
)

// Section is the byte range of one copied array within a package.
type Section struct {
	Offset int
	Size   int
}

// Layout is the placement of every copied array within one contiguous
// block. The block size is the final Offset.
type Layout struct {
	alloc.Offsetable
	PerSubQueueInfo Section
	CmdBuffers      []Section // per sub-queue
	GpuMemoryRefs   Section
	DoppRefs        Section
	BlockIfFlipping Section
	CmdBufInfos     []Section // per sub-queue
	Fences          Section
	Internal        Section
}

// Total returns the size of the block in bytes.
func (l *Layout) Total() int { return l.Offset }

func (l *Layout) add(count int, size, align uintptr) Section {
	if count == 0 {
		return Section{Offset: l.Offset}
	}
	l.AlignUp(int(align))
	s := Section{Offset: l.Offset, Size: count * int(size)}
	l.Offset += s.Size
	return s
}

var (
	perSubQueueInfo api.PerSubQueueSubmitInfo
	cmdBuffer       api.CmdBuffer
	cmdBufInfo      api.CmdBufInfo
	gpuMemoryRef    api.GpuMemoryRef
	doppRef         api.DoppRef
	gpuMemory       api.GpuMemory
	fence           api.Fence
	internalInfo    api.InternalSubmitInfo
)

// Compute returns the layout of the package for info with numInternal
// internal submit infos. info must have been validated.
func Compute(info *api.MultiSubmitInfo, numInternal int) Layout {
	l := Layout{}
	n := int(info.PerSubQueueInfoCount)
	l.PerSubQueueInfo = l.add(n, unsafe.Sizeof(perSubQueueInfo), unsafe.Alignof(perSubQueueInfo))
	l.CmdBuffers = make([]Section, n)
	for i, sq := range info.PerSubQueueInfo[:n] {
		l.CmdBuffers[i] = l.add(int(sq.CmdBufferCount), unsafe.Sizeof(cmdBuffer), unsafe.Alignof(cmdBuffer))
	}
	l.GpuMemoryRefs = l.add(int(info.GpuMemRefCount), unsafe.Sizeof(gpuMemoryRef), unsafe.Alignof(gpuMemoryRef))
	l.DoppRefs = l.add(int(info.DoppRefCount), unsafe.Sizeof(doppRef), unsafe.Alignof(doppRef))
	l.BlockIfFlipping = l.add(int(info.BlockIfFlippingCount), unsafe.Sizeof(gpuMemory), unsafe.Alignof(gpuMemory))
	l.CmdBufInfos = make([]Section, n)
	for i, sq := range info.PerSubQueueInfo[:n] {
		count := 0
		if sq.CmdBufInfoList != nil {
			count = int(sq.CmdBufferCount)
		}
		l.CmdBufInfos[i] = l.add(count, unsafe.Sizeof(cmdBufInfo), unsafe.Alignof(cmdBufInfo))
	}
	l.Fences = l.add(int(info.FenceCount), unsafe.Sizeof(fence), unsafe.Alignof(fence))
	l.Internal = l.add(numInternal, unsafe.Sizeof(internalInfo), unsafe.Alignof(internalInfo))
	return l
}

// Package is a self-contained copy of a submission.
type Package struct {
	Layout    Layout
	info      api.MultiSubmitInfo
	internal  []api.InternalSubmitInfo
	allocator alloc.Allocator
	freed     atomic.Bool
}

// New copies info and internal into a new Package whose size is accounted
// against a. It returns api.ErrOutOfMemory if a refuses the reservation, in
// which case nothing is retained.
func New(ctx context.Context, a alloc.Allocator, info *api.MultiSubmitInfo, internal []api.InternalSubmitInfo) (*Package, error) {
	p := &Package{Layout: Compute(info, len(internal)), allocator: a}
	if total := p.Layout.Total(); total > 0 {
		if err := a.Reserve(total); err != nil {
			log.W(ctx, "Packaging %d bytes: %v", total, err)
			return nil, api.ErrOutOfMemory
		}
	}

	n := int(info.PerSubQueueInfoCount)
	p.info = api.MultiSubmitInfo{
		PerSubQueueInfoCount: info.PerSubQueueInfoCount,
		GpuMemRefCount:       info.GpuMemRefCount,
		DoppRefCount:         info.DoppRefCount,
		BlockIfFlippingCount: info.BlockIfFlippingCount,
		FenceCount:           info.FenceCount,
		DumpSink:             info.DumpSink,
	}
	if n > 0 {
		p.info.PerSubQueueInfo = make([]api.PerSubQueueSubmitInfo, n)
	}

	totalCmdBuffers, totalInfos := 0, 0
	for _, sq := range info.PerSubQueueInfo[:n] {
		totalCmdBuffers += int(sq.CmdBufferCount)
		if sq.CmdBufInfoList != nil {
			totalInfos += int(sq.CmdBufferCount)
		}
	}
	cmdBuffers := make([]api.CmdBuffer, totalCmdBuffers)
	infos := make([]api.CmdBufInfo, totalInfos)
	for i, sq := range info.PerSubQueueInfo[:n] {
		count := int(sq.CmdBufferCount)
		dst := &p.info.PerSubQueueInfo[i]
		dst.CmdBufferCount = sq.CmdBufferCount
		if count > 0 {
			dst.CmdBuffers = cmdBuffers[:count:count]
			cmdBuffers = cmdBuffers[count:]
			copy(dst.CmdBuffers, sq.CmdBuffers[:count])
			if sq.CmdBufInfoList != nil {
				dst.CmdBufInfoList = infos[:count:count]
				infos = infos[count:]
				copy(dst.CmdBufInfoList, sq.CmdBufInfoList[:count])
			}
		}
	}
	if c := info.GpuMemRefCount; c > 0 {
		p.info.GpuMemoryRefs = append(make([]api.GpuMemoryRef, 0, c), info.GpuMemoryRefs[:c]...)
	}
	if c := info.DoppRefCount; c > 0 {
		p.info.DoppRefs = append(make([]api.DoppRef, 0, c), info.DoppRefs[:c]...)
	}
	if c := info.BlockIfFlippingCount; c > 0 {
		p.info.BlockIfFlipping = append(make([]api.GpuMemory, 0, c), info.BlockIfFlipping[:c]...)
	}
	if c := info.FenceCount; c > 0 {
		p.info.Fences = append(make([]api.Fence, 0, c), info.Fences[:c]...)
	}
	if len(internal) > 0 {
		p.internal = append(make([]api.InternalSubmitInfo, 0, len(internal)), internal...)
	}
	return p, nil
}

// Info returns the packaged submission.
func (p *Package) Info() *api.MultiSubmitInfo { return &p.info }

// Internal returns the packaged internal submit infos.
func (p *Package) Internal() []api.InternalSubmitInfo { return p.internal }

// Free returns the package's bytes to its allocator. It panics if called
// more than once.
func (p *Package) Free() {
	if !p.freed.CompareAndSwap(false, true) {
		panic(fmt.Errorf("package of %d bytes freed twice", p.Layout.Total()))
	}
	if total := p.Layout.Total(); total > 0 {
		p.allocator.Release(total)
	}
	p.info = api.MultiSubmitInfo{}
	p.internal = nil
}
