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
	"github.com/itrainl4/pal/gpu/device"
)

// QueueContext is a hardware queue context that adds fixed preamble and
// postamble streams to every submission.
type QueueContext struct {
	Type       api.QueueType
	Engine     *device.Engine
	Initial    bool
	Preambles  []api.CmdStream
	Postambles []api.CmdStream
	// PreProcessErr is returned by PreProcessSubmit when not nil.
	PreProcessErr error

	mutex     sync.Mutex
	pre, post int
	destroyed bool
}

// PreProcessSubmit implements api.QueueContext.
func (q *QueueContext) PreProcessSubmit(ctx context.Context, info *api.InternalSubmitInfo, cmdBufferCount int) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.PreProcessErr != nil {
		return q.PreProcessErr
	}
	q.pre++
	q.fill(info)
	return nil
}

func (q *QueueContext) fill(info *api.InternalSubmitInfo) {
	if q.Engine != nil {
		info.EngineType = q.Engine.Type
	}
	info.NumPreambleCmdStreams = uint32(copy(info.PreambleCmdStreams[:], q.Preambles))
	info.NumPostambleCmdStreams = uint32(copy(info.PostambleCmdStreams[:], q.Postambles))
}

// PostProcessSubmit implements api.QueueContext.
func (q *QueueContext) PostProcessSubmit(ctx context.Context) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.post++
}

// ProcessInitialSubmit implements api.QueueContext.
func (q *QueueContext) ProcessInitialSubmit(ctx context.Context, info *api.InternalSubmitInfo) error {
	if !q.Initial {
		return api.ErrUnavailable
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.fill(info)
	return nil
}

// Destroy implements api.QueueContext.
func (q *QueueContext) Destroy(ctx context.Context) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.destroyed = true
}

// Counts returns the number of pre and post process calls.
func (q *QueueContext) Counts() (pre, post int) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.pre, q.post
}

// Destroyed returns true once Destroy has been called.
func (q *QueueContext) Destroyed() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.destroyed
}

// Hardware implements device.GfxDevice and device.OssDevice, handing out
// QueueContexts configured from its fields.
type Hardware struct {
	InitialSubmit bool
	Preambles     []api.CmdStream
	Postambles    []api.CmdStream

	mutex    sync.Mutex
	contexts []*QueueContext
}

// CreateQueueContext implements device.GfxDevice.
func (h *Hardware) CreateQueueContext(ctx context.Context, info api.QueueCreateInfo, e *device.Engine) (api.QueueContext, error) {
	return h.create(info.QueueType, e), nil
}

func (h *Hardware) create(t api.QueueType, e *device.Engine) *QueueContext {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	q := &QueueContext{
		Type:       t,
		Engine:     e,
		Initial:    h.InitialSubmit,
		Preambles:  h.Preambles,
		Postambles: h.Postambles,
	}
	h.contexts = append(h.contexts, q)
	return q
}

// Contexts returns every context created so far.
func (h *Hardware) Contexts() []*QueueContext {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]*QueueContext{}, h.contexts...)
}

// Oss adapts Hardware to device.OssDevice.
type Oss struct{ *Hardware }

// CreateQueueContext implements device.OssDevice.
func (o Oss) CreateQueueContext(ctx context.Context, t api.QueueType) (api.QueueContext, error) {
	return o.create(t, nil), nil
}

// Resources implements device.ResourceFactory and device.Overlay.
type Resources struct {
	// Streams are given to every internal command buffer.
	Streams []api.CmdStream

	mutex      sync.Mutex
	cmdBuffers []*CmdBuffer
	fences     []*Fence
	overlays   int
}

// CreateInternalCmdBuffer implements device.ResourceFactory.
func (r *Resources) CreateInternalCmdBuffer(ctx context.Context, info api.CmdBufferCreateInfo) (api.CmdBuffer, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	cb := NewCmdBuffer(fmt.Sprintf("internal-%d", len(r.cmdBuffers)), info.QueueType)
	cb.state = api.RecordStateReset
	cb.Streams = r.Streams
	r.cmdBuffers = append(r.cmdBuffers, cb)
	return cb, nil
}

// CreateInternalFence implements device.ResourceFactory.
func (r *Resources) CreateInternalFence(ctx context.Context) (api.Fence, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	f := &Fence{Name: fmt.Sprintf("internal-fence-%d", len(r.fences))}
	r.fences = append(r.fences, f)
	return f, nil
}

// ApplyDevOverlay implements device.Overlay.
func (r *Resources) ApplyDevOverlay(ctx context.Context, image api.Image, cb api.CmdBuffer) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.overlays++
	return nil
}

// CmdBuffers returns the internal command buffers created so far.
func (r *Resources) CmdBuffers() []*CmdBuffer {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*CmdBuffer{}, r.cmdBuffers...)
}

// Fences returns the internal fences created so far.
func (r *Resources) Fences() []*Fence {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*Fence{}, r.fences...)
}

// Overlays returns the number of ApplyDevOverlay calls.
func (r *Resources) Overlays() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.overlays
}
