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

package queue_test

import (
	"context"
	"testing"

	"github.com/itrainl4/pal/core/assert"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/device"
	"github.com/itrainl4/pal/gpu/fake"
	"github.com/itrainl4/pal/gpu/queue"
)

var (
	universal = api.QueueCreateInfo{QueueType: api.QueueTypeUniversal, EngineType: api.EngineTypeUniversal}
	compute   = api.QueueCreateInfo{QueueType: api.QueueTypeCompute, EngineType: api.EngineTypeCompute}
	dma       = api.QueueCreateInfo{QueueType: api.QueueTypeDma, EngineType: api.EngineTypeDma}
	timer     = api.QueueCreateInfo{QueueType: api.QueueTypeTimer, EngineType: api.EngineTypeTimer}
)

type env struct {
	ctx       context.Context
	dev       *device.Registry
	hw        *fake.Hardware
	resources *fake.Resources
	backend   *fake.Backend
	conn      *fake.Conn
}

func defaultProperties() device.Properties {
	props := device.Properties{IsMasterGpu: true, SupportBlockIfFlipping: true}
	for t := range props.Engines {
		props.Engines[t].NumAvailable = 1
	}
	props.DirectPresentFor[api.QueueTypeUniversal] = api.SupportWindowedPresent | api.SupportFullscreenPresent
	props.DirectPresentFor[api.QueueTypeCompute] = api.SupportWindowedPresent
	return props
}

func newEnv(t *testing.T, settings device.Settings, props device.Properties) *env {
	e := &env{
		ctx:       log.Testing(t),
		dev:       device.New(settings, props),
		hw:        &fake.Hardware{},
		resources: &fake.Resources{},
		backend:   &fake.Backend{},
		conn:      &fake.Conn{},
	}
	e.dev.Gfx = e.hw
	e.dev.Oss = fake.Oss{Hardware: e.hw}
	e.dev.Resources = e.resources
	e.dev.Overlay = e.resources
	return e
}

func (e *env) newQueue(opts queue.Options, infos ...api.QueueCreateInfo) (*queue.Queue, error) {
	q, err := queue.New(e.ctx, e.dev, e.backend, e.conn, infos, opts)
	if err != nil {
		return nil, err
	}
	return q, q.LateInit(e.ctx)
}

func (e *env) mustQueue(opts queue.Options, infos ...api.QueueCreateInfo) *queue.Queue {
	q, err := e.newQueue(opts, infos...)
	assert.For(e.ctx, "create queue").ThatError(err).Succeeded()
	return q
}

func submitInfo(cbs ...api.CmdBuffer) *api.MultiSubmitInfo {
	return &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 1,
		PerSubQueueInfo: []api.PerSubQueueSubmitInfo{{
			CmdBufferCount: uint32(len(cbs)),
			CmdBuffers:     cbs,
		}},
	}
}

func cmdBuffer(name string) *fake.CmdBuffer {
	return fake.NewCmdBuffer(name, api.QueueTypeUniversal)
}

// stall makes q wait on a new semaphore that has not been signalled yet.
func stall(ctx context.Context, q *queue.Queue) *fake.Semaphore {
	sem := fake.NewSemaphore("sem", 3)
	assert.For(ctx, "wait").ThatError(q.WaitSemaphore(ctx, sem, 5)).Succeeded()
	assert.For(ctx, "stalled").ThatBoolean(q.Stalled()).IsTrue()
	return sem
}
