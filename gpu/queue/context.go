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

	"github.com/itrainl4/pal/gpu/api"
)

// createContext resolves the hardware context of a sub-queue.
// Universal and compute queues run on the graphics IP, DMA queues on the OS
// services IP (or the graphics IP of Gfx10 parts without one) and timer
// queues have a software-only context.
func (q *Queue) createContext(ctx context.Context, info *SubQueueInfo) (api.QueueContext, error) {
	gfx, props := q.dev.Gfx, &q.dev.Properties
	switch info.CreateInfo.QueueType {
	case api.QueueTypeUniversal, api.QueueTypeCompute:
		if gfx == nil {
			return nil, api.ErrIncompatibleDevice
		}
		return gfx.CreateQueueContext(ctx, info.CreateInfo, info.Engine)
	case api.QueueTypeDma:
		switch {
		case props.Engines[api.EngineTypeDma].NumAvailable == 0:
			return nil, api.ErrIncompatibleDevice
		case q.dev.Oss != nil:
			return q.dev.Oss.CreateQueueContext(ctx, info.CreateInfo.QueueType)
		case gfx != nil && props.IsGfx10:
			return gfx.CreateQueueContext(ctx, info.CreateInfo, info.Engine)
		default:
			return nil, api.ErrIncompatibleDevice
		}
	case api.QueueTypeTimer:
		return softwareContext{}, nil
	default:
		return nil, api.ErrUnknown
	}
}

// softwareContext is the context of queues that have no hardware engine.
type softwareContext struct{}

func (softwareContext) PreProcessSubmit(context.Context, *api.InternalSubmitInfo, int) error {
	return nil
}

func (softwareContext) PostProcessSubmit(context.Context) {}

func (softwareContext) ProcessInitialSubmit(context.Context, *api.InternalSubmitInfo) error {
	return api.ErrUnavailable
}

func (softwareContext) Destroy(context.Context) {}
