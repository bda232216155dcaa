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

// Package validate checks submission requests for structural legality.
package validate

import "github.com/itrainl4/pal/gpu/api"

// Target is the queue a submission is validated against.
type Target interface {
	QueueType() api.QueueType
	SubQueueCount() int
}

// Platform holds the platform capabilities validation depends on.
type Platform struct {
	SupportBlockIfFlipping bool
}

// Submit checks info against q and p. It returns nil or the first failure
// found, and never modifies info.
func Submit(q Target, info *api.MultiSubmitInfo, p Platform) error {
	switch {
	case q.QueueType() == api.QueueTypeTimer:
		return api.ErrUnavailable
	case missing(info.GpuMemRefCount, len(info.GpuMemoryRefs)),
		missing(info.DoppRefCount, len(info.DoppRefs)),
		missing(info.BlockIfFlippingCount, len(info.BlockIfFlipping)),
		missing(info.FenceCount, len(info.Fences)):
		return api.ErrInvalidPointer
	case info.BlockIfFlippingCount > api.MaxBlockIfFlippingCount,
		info.BlockIfFlippingCount > 0 && !p.SupportBlockIfFlipping:
		return api.ErrInvalidValue
	case missing(info.PerSubQueueInfoCount, len(info.PerSubQueueInfo)):
		return api.ErrInvalidPointer
	case int(info.PerSubQueueInfoCount) > q.SubQueueCount():
		return api.ErrInvalidValue
	}

	for _, sq := range info.PerSubQueueInfo[:info.PerSubQueueInfoCount] {
		if missing(sq.CmdBufferCount, len(sq.CmdBuffers)) ||
			(sq.CmdBufInfoList != nil && missing(sq.CmdBufferCount, len(sq.CmdBufInfoList))) {
			return api.ErrInvalidPointer
		}
		for _, cb := range sq.CmdBuffers[:sq.CmdBufferCount] {
			switch {
			case cb == nil:
				return api.ErrInvalidPointer
			case cb.RecordState() != api.RecordStateExecutable:
				return api.ErrIncompleteCommandBuffer
			case cb.QueueType() != q.QueueType():
				return api.ErrIncompatibleQueue
			case cb.IsNested():
				return api.ErrInvalidValue
			}
		}
	}

	for _, r := range info.GpuMemoryRefs[:info.GpuMemRefCount] {
		if r.Memory == nil {
			return api.ErrInvalidPointer
		}
	}
	for _, r := range info.DoppRefs[:info.DoppRefCount] {
		if r.Memory == nil {
			return api.ErrInvalidPointer
		}
	}
	for _, m := range info.BlockIfFlipping[:info.BlockIfFlippingCount] {
		if m == nil {
			return api.ErrInvalidPointer
		}
	}
	for _, f := range info.Fences[:info.FenceCount] {
		if f == nil {
			return api.ErrInvalidPointer
		}
	}
	return nil
}

// missing returns true if a list of length n cannot hold count elements.
func missing(count uint32, n int) bool {
	return count > 0 && int(count) > n
}
