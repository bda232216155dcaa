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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/itrainl4/pal/core/assert"
	"github.com/itrainl4/pal/core/fault"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/batch"
	"github.com/itrainl4/pal/gpu/cmddump"
	"github.com/itrainl4/pal/gpu/device"
	"github.com/itrainl4/pal/gpu/fake"
	"github.com/itrainl4/pal/gpu/queue"
)

func TestInitOverrides(t *testing.T) {
	props := defaultProperties()
	props.Engines[api.EngineTypeUniversal].SupportPersistentCeRam = true
	e := newEnv(t, device.Settings{SubmitOptModeOverride: 2}, props)
	ctx := e.ctx

	realtime := universal
	realtime.Priority = api.QueuePriorityRealtime
	realtime.NumReservedCu = 4
	realtime.PersistentCeRamOffset = 40
	realtime.PersistentCeRamSize = 3
	normal := compute
	normal.NumReservedCu = 4
	normal.PersistentCeRamOffset = 40
	normal.PersistentCeRamSize = 3

	q := e.mustQueue(queue.Options{}, realtime, normal)
	got := q.SubQueue(0).CreateInfo
	assert.For(ctx, "opt mode").That(got.SubmitOptMode).Equals(api.SubmitOptModeDisabled)
	assert.For(ctx, "realtime keeps CUs").ThatInteger(int(got.NumReservedCu)).Equals(4)
	assert.For(ctx, "ce ram offset").ThatInteger(int(got.PersistentCeRamOffset)).Equals(32)
	assert.For(ctx, "ce ram size").ThatInteger(int(got.PersistentCeRamSize)).Equals(8)

	got = q.SubQueue(1).CreateInfo
	assert.For(ctx, "normal clears CUs").ThatInteger(int(got.NumReservedCu)).Equals(0)
	assert.For(ctx, "no ce ram offset").ThatInteger(int(got.PersistentCeRamOffset)).Equals(0)
	assert.For(ctx, "no ce ram size").ThatInteger(int(got.PersistentCeRamSize)).Equals(0)
}

func TestContextResolution(t *testing.T) {
	for _, test := range []struct {
		name     string
		info     api.QueueCreateInfo
		setup    func(*env)
		expected error
		hardware bool
	}{
		{name: "universal", info: universal, hardware: true},
		{name: "compute", info: compute, hardware: true},
		{name: "universal without gfx", info: universal, setup: func(e *env) { e.dev.Gfx = nil }, expected: api.ErrIncompatibleDevice},
		{name: "dma on oss", info: dma, hardware: true},
		{name: "dma on gfx10", info: dma, hardware: true, setup: func(e *env) {
			e.dev.Oss = nil
			e.dev.Properties.IsGfx10 = true
		}},
		{name: "dma without oss", info: dma, setup: func(e *env) { e.dev.Oss = nil }, expected: api.ErrIncompatibleDevice},
		{name: "dma without engines", info: dma, setup: func(e *env) {
			e.dev.Properties.Engines[api.EngineTypeDma].NumAvailable = 0
		}, expected: api.ErrIncompatibleDevice},
		{name: "timer", info: timer},
		{name: "unknown", info: api.QueueCreateInfo{QueueType: api.QueueTypeCount}, expected: api.ErrUnknown},
	} {
		t.Run(test.name, func(t *testing.T) {
			e := newEnv(t, device.Settings{}, defaultProperties())
			ctx := e.ctx
			if test.setup != nil {
				test.setup(e)
			}
			q, err := e.newQueue(queue.Options{}, test.info)
			assert.For(ctx, "err").ThatError(err).HasCause(test.expected)
			if err != nil {
				assert.For(ctx, "conn closed").ThatInteger(e.conn.Closes()).Equals(1)
				return
			}
			if test.hardware {
				assert.For(ctx, "contexts").ThatSlice(e.hw.Contexts()).IsLength(1)
			} else {
				assert.For(ctx, "contexts").ThatSlice(e.hw.Contexts()).IsEmpty()
			}
			assert.For(ctx, "context").That(q.SubQueue(0).Context).IsNotNil()
		})
	}
}

func TestDummyCommandBuffer(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	e.mustQueue(queue.Options{}, universal)
	cbs := e.resources.CmdBuffers()
	assert.For(ctx, "dummy").ThatSlice(cbs).IsLength(1)
	assert.For(ctx, "executable").That(cbs[0].RecordState()).Equals(api.RecordStateExecutable)
	assert.For(ctx, "no initial submit").ThatSlice(e.backend.Submissions()).IsEmpty()

	t2 := newEnv(t, device.Settings{}, defaultProperties())
	q := t2.mustQueue(queue.Options{}, timer)
	assert.For(ctx, "no timer dummy").ThatSlice(t2.resources.CmdBuffers()).IsEmpty()
	assert.For(ctx, "timer dummy submit").ThatError(q.DummySubmit(ctx, false)).Equals(api.ErrUnavailable)
}

func TestInitialSubmit(t *testing.T) {
	for _, test := range []struct {
		name     string
		settings device.Settings
		count    int
	}{
		{name: "normal", count: 1},
		{name: "ifh", settings: device.Settings{IfhGpuMask: 1, IfhMode: api.IfhModePal}, count: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			e := newEnv(t, test.settings, defaultProperties())
			ctx := e.ctx
			e.hw.InitialSubmit = true
			pre := &fake.CmdStream{}
			e.hw.Preambles = []api.CmdStream{pre}
			e.mustQueue(queue.Options{}, universal, compute)

			subs := e.backend.Submissions()
			assert.For(ctx, "submissions").ThatSlice(subs).IsLength(1)
			assert.For(ctx, "events").ThatSlice(e.backend.Events()).Equals([]string{"submit internal-0,internal-0"})
			assert.For(ctx, "preambles").ThatInteger(int(subs[0].Internal[1].NumPreambleCmdStreams)).Equals(1)
			dummy := e.resources.CmdBuffers()[0]
			assert.For(ctx, "submit count").ThatInteger(dummy.SubmitCount()).Equals(test.count)
		})
	}
}

func TestLateInitRegisters(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "device").ThatSlice(e.dev.Queues()).Equals([]device.Member{q})
	engine := e.dev.Engine(api.EngineTypeUniversal, 0)
	assert.For(ctx, "engine").ThatSlice(engine.Queues()).Equals([]device.Member{q})
	assert.For(ctx, "sub-queue engine").That(q.SubQueue(0).Engine).Equals(engine)
}

func TestDestroy(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "destroy").ThatError(q.Destroy(ctx)).Succeeded()
	assert.For(ctx, "idle").ThatInteger(e.backend.WaitIdles()).Equals(1)
	assert.For(ctx, "dummy").ThatBoolean(e.resources.CmdBuffers()[0].Destroyed()).IsTrue()
	assert.For(ctx, "context").ThatBoolean(e.hw.Contexts()[0].Destroyed()).IsTrue()
	assert.For(ctx, "device").ThatSlice(e.dev.Queues()).IsEmpty()
	assert.For(ctx, "engine").ThatSlice(e.dev.Engine(api.EngineTypeUniversal, 0).Queues()).IsEmpty()
	assert.For(ctx, "context released").ThatBoolean(q.SubmissionContext().Destroyed()).IsTrue()
	assert.For(ctx, "conn").ThatInteger(e.conn.Closes()).Equals(1)
}

func TestDestroyWithDeferredWorkPanics(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	stall(ctx, q)
	q.Submit(ctx, submitInfo(cmdBuffer("a")))
	defer func() {
		assert.For(ctx, "panic").That(recover()).IsNotNil()
	}()
	q.Destroy(ctx)
}

func TestFencesHoldSubmissionContext(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	sc := q.SubmissionContext()

	const count = 4
	fences := make([]api.Fence, count)
	for i := range fences {
		fences[i] = &fake.Fence{}
	}
	info := submitInfo(cmdBuffer("a"))
	info.FenceCount, info.Fences = count, fences
	assert.For(ctx, "submit").ThatError(q.Submit(ctx, info)).Succeeded()
	assert.For(ctx, "refs").ThatInteger(sc.RefCount()).Equals(1 + count)

	q.Destroy(ctx)
	assert.For(ctx, "outlives queue").ThatBoolean(sc.Destroyed()).IsFalse()
	for i, f := range fences {
		f.Destroy(ctx)
		assert.For(ctx, "refs after %d", i).ThatInteger(sc.RefCount()).Equals(count - i - 1)
	}
	assert.For(ctx, "destroyed").ThatBoolean(sc.Destroyed()).IsTrue()
	assert.For(ctx, "conn").ThatInteger(e.conn.Closes()).Equals(1)
}

func TestSubmitFence(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	f := &fake.Fence{Name: "f"}
	assert.For(ctx, "submit").ThatError(q.SubmitFence(ctx, f)).Succeeded()
	subs := e.backend.Submissions()
	assert.For(ctx, "fences").ThatSlice(subs[0].Fences).Equals([]api.Fence{f})
	assert.For(ctx, "no buffers").ThatSlice(subs[0].CmdBuffers[0]).IsEmpty()
	assert.For(ctx, "refs").ThatInteger(q.SubmissionContext().RefCount()).Equals(2)
}

func TestSubmitFailures(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)

	assert.For(ctx, "nil info").ThatError(q.Submit(ctx, nil)).Equals(api.ErrInvalidPointer)
	assert.For(ctx, "nil internal info").ThatError(q.SubmitInternal(ctx, nil, true)).Equals(api.ErrInvalidPointer)
	assert.For(ctx, "nil sub-queues").ThatError(q.Submit(ctx, &api.MultiSubmitInfo{PerSubQueueInfoCount: 1})).
		Equals(api.ErrInvalidPointer)

	building := cmdBuffer("building")
	building.SetRecordState(api.RecordStateBuilding)
	assert.For(ctx, "incomplete").ThatError(q.Submit(ctx, submitInfo(building))).
		Equals(api.ErrIncompleteCommandBuffer)
	assert.For(ctx, "pre-submitted").ThatInteger(building.PreSubmits()).Equals(1)

	const errPreSubmit = fault.Const("pre-submit")
	bad := cmdBuffer("bad")
	bad.PreSubmitErr = errPreSubmit
	assert.For(ctx, "pre-submit").ThatError(q.Submit(ctx, submitInfo(bad))).Equals(errPreSubmit)

	const errPreProcess = fault.Const("pre-process")
	e.hw.Contexts()[0].PreProcessErr = errPreProcess
	a := cmdBuffer("a")
	assert.For(ctx, "pre-process").ThatError(q.Submit(ctx, submitInfo(a))).Equals(errPreProcess)
	assert.For(ctx, "not counted").ThatInteger(a.SubmitCount()).Equals(0)

	assert.For(ctx, "nothing submitted").ThatSlice(e.backend.Submissions()).IsEmpty()
	assert.For(ctx, "still open").ThatBoolean(q.Stalled()).IsFalse()
}

func TestSubmitProcessing(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	e.hw.Postambles = []api.CmdStream{&fake.CmdStream{}}
	q := e.mustQueue(queue.Options{}, universal, compute)
	a, b := cmdBuffer("a"), cmdBuffer("b")
	info := &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 2,
		PerSubQueueInfo: []api.PerSubQueueSubmitInfo{
			{CmdBufferCount: 1, CmdBuffers: []api.CmdBuffer{a}},
			{CmdBufferCount: 1, CmdBuffers: []api.CmdBuffer{b}},
		},
	}
	assert.For(ctx, "submit").ThatError(q.Submit(ctx, info)).Succeeded()
	for i, c := range e.hw.Contexts() {
		pre, post := c.Counts()
		assert.For(ctx, "pre %d", i).ThatInteger(pre).Equals(1)
		assert.For(ctx, "post %d", i).ThatInteger(post).Equals(1)
	}
	assert.For(ctx, "a counted").ThatInteger(a.SubmitCount()).Equals(1)
	assert.For(ctx, "b counted").ThatInteger(b.SubmitCount()).Equals(1)
	internal := e.backend.Submissions()[0].Internal
	assert.For(ctx, "internal").ThatSlice(internal).IsLength(2)
	assert.For(ctx, "postambles").ThatInteger(int(internal[0].NumPostambleCmdStreams)).Equals(1)

	assert.For(ctx, "empty").ThatError(q.Submit(ctx, &api.MultiSubmitInfo{PerSubQueueInfo: []api.PerSubQueueSubmitInfo{}})).Succeeded()
	pre, post := e.hw.Contexts()[0].Counts()
	assert.For(ctx, "empty pre").ThatInteger(pre).Equals(2)
	assert.For(ctx, "empty post").ThatInteger(post).Equals(1)
	assert.For(ctx, "empty internal").ThatSlice(e.backend.Submissions()[1].Internal).IsLength(1)
}

func TestPresentDirect(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	windowed := &api.PresentDirectInfo{PresentMode: api.PresentModeWindowed}

	assert.For(ctx, "present").ThatError(q.PresentDirect(ctx, windowed, true)).Succeeded()
	assert.For(ctx, "presents").ThatSlice(e.backend.Presents()).IsLength(1)
	assert.For(ctx, "frame").ThatInteger(int(e.dev.FrameCount())).Equals(1)
	assert.For(ctx, "internal present").ThatError(q.PresentDirect(ctx, windowed, false)).Succeeded()
	assert.For(ctx, "frame").ThatInteger(int(e.dev.FrameCount())).Equals(1)

	d := e.mustQueue(queue.Options{}, dma)
	assert.For(ctx, "master").ThatError(d.PresentDirect(ctx, windowed, true)).Equals(api.ErrUnavailable)
	assert.For(ctx, "frame on error").ThatInteger(int(e.dev.FrameCount())).Equals(2)
	e.dev.Properties.IsMasterGpu = false
	assert.For(ctx, "slave").ThatError(d.PresentDirect(ctx, windowed, false)).Equals(api.ErrWindowedPresentUnavailable)
	fullscreen := &api.PresentDirectInfo{PresentMode: api.PresentModeFullscreen}
	assert.For(ctx, "fullscreen").ThatError(d.PresentDirect(ctx, fullscreen, false)).Equals(api.ErrUnavailable)
}

func TestPresentModeSupport(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	prior := universal
	prior.WindowedPriorBlit = true
	q := e.mustQueue(queue.Options{}, prior)
	assert.For(ctx, "fullscreen").ThatBoolean(q.IsPresentModeSupported(api.PresentModeFullscreen)).IsTrue()
	assert.For(ctx, "prior blit").ThatBoolean(q.IsPresentModeSupported(api.PresentModeWindowed)).IsFalse()
	e.dev.Properties.DirectPresentFor[api.QueueTypeUniversal] |= api.SupportWindowedPriorBlitPresent
	assert.For(ctx, "prior blit supported").ThatBoolean(q.IsPresentModeSupported(api.PresentModeWindowed)).IsTrue()
}

func TestPresentPostprocess(t *testing.T) {
	props := defaultProperties()
	props.DeveloperMode = true
	props.ShowDevDriverOverlay = true
	e := newEnv(t, device.Settings{}, props)
	ctx := e.ctx
	e.backend.SignalFences = true
	q := e.mustQueue(queue.Options{}, universal)

	image := &fake.Image{Presentable: true, Flippable: true, Mem: &fake.Memory{Name: "primary", Flippable: true}}
	info := &api.PresentDirectInfo{PresentMode: api.PresentModeFullscreen, SrcImage: image}
	for i := 0; i < 2; i++ {
		assert.For(ctx, "present %d", i).ThatError(q.PresentDirect(ctx, info, true)).Succeeded()
	}
	assert.For(ctx, "overlays").ThatInteger(e.resources.Overlays()).Equals(2)
	assert.For(ctx, "events").ThatSlice(e.backend.Events()).Equals([]string{
		"submit internal-1", "present", "submit internal-1", "present",
	})
	subs := e.backend.Submissions()
	assert.For(ctx, "block if flipping").ThatSlice(subs[0].BlockIfFlipping).Equals([]api.GpuMemory{image.Mem})

	assert.For(ctx, "internal present").ThatError(q.PresentDirect(ctx, info, false)).Succeeded()
	assert.For(ctx, "no overlay").ThatInteger(e.resources.Overlays()).Equals(2)
}

func TestPresentSwapChain(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	sc := &fake.SwapChain{Images: 2}
	image := &fake.Image{Presentable: true}

	for _, test := range []struct {
		name     string
		info     api.PresentSwapChainInfo
		expected error
	}{
		{"nil image", api.PresentSwapChainInfo{SwapChain: sc}, api.ErrInvalidPointer},
		{"nil swap chain", api.PresentSwapChainInfo{SrcImage: image}, api.ErrInvalidPointer},
		{"not presentable", api.PresentSwapChainInfo{SrcImage: &fake.Image{}, SwapChain: sc}, api.ErrInvalidValue},
		{"not flippable", api.PresentSwapChainInfo{
			PresentMode: api.PresentModeFullscreen, SrcImage: image, SwapChain: sc,
		}, api.ErrInvalidValue},
		{"index", api.PresentSwapChainInfo{SrcImage: image, SwapChain: sc, ImageIndex: 2}, api.ErrInvalidValue},
	} {
		info := test.info
		assert.For(ctx, test.name).ThatError(q.PresentSwapChain(ctx, &info)).Equals(test.expected)
	}
	assert.For(ctx, "frames on error").ThatInteger(int(e.dev.FrameCount())).Equals(5)
	assert.For(ctx, "no presents").ThatSlice(sc.Presents()).IsEmpty()

	notify := api.PresentSwapChainInfo{SrcImage: image, SwapChain: sc, NotifyOnly: true}
	assert.For(ctx, "notify").ThatError(q.PresentSwapChain(ctx, &notify)).Succeeded()
	assert.For(ctx, "notify frame").ThatInteger(int(e.dev.FrameCount())).Equals(5)

	stall(ctx, q)
	ok := api.PresentSwapChainInfo{SrcImage: image, SwapChain: sc, ImageIndex: 1}
	assert.For(ctx, "present while stalled").ThatError(q.PresentSwapChain(ctx, &ok)).Succeeded()
	assert.For(ctx, "presents").ThatSlice(sc.Presents()).Equals([]uint32{1})
	assert.For(ctx, "frame").ThatInteger(int(e.dev.FrameCount())).Equals(6)
	assert.For(ctx, "nothing deferred").ThatSlice(q.Pending()).IsEmpty()
}

func TestDelay(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	u := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "universal").ThatError(u.Delay(ctx, 1)).Equals(api.ErrUnavailable)
	assert.For(ctx, "universal vsync").ThatError(u.DelayAfterVsync(ctx, 1, fake.Screen("s"))).Equals(api.ErrUnavailable)

	q := e.mustQueue(queue.Options{}, timer)
	assert.For(ctx, "delay").ThatError(q.Delay(ctx, 2)).Succeeded()
	assert.For(ctx, "vsync").ThatError(q.DelayAfterVsync(ctx, 3, fake.Screen("s"))).Succeeded()
	assert.For(ctx, "submit").ThatError(q.Submit(ctx, submitInfo(cmdBuffer("a")))).Equals(api.ErrUnavailable)

	sem := stall(ctx, q)
	assert.For(ctx, "deferred").ThatError(q.Delay(ctx, 4)).Succeeded()
	assert.For(ctx, "vsync stalled").ThatError(q.DelayAfterVsync(ctx, 5, fake.Screen("s"))).Equals(api.ErrUnavailable)
	assert.For(ctx, "pending").ThatSlice(q.Pending()).Equals([]batch.Kind{batch.Delay})
	sem.Signal(ctx, 5)
	assert.For(ctx, "delays").ThatSlice(e.backend.Delays()).Equals([]fake.Delay{
		{Milliseconds: 2}, {Milliseconds: 3, Screen: "s"}, {Milliseconds: 4},
	})
}

func TestAssociateFence(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "nil").ThatError(q.AssociateFenceWithLastSubmit(ctx, nil)).Equals(api.ErrInvalidPointer)

	sem := stall(ctx, q)
	f := &fake.Fence{Name: "f"}
	assert.For(ctx, "deferred").ThatError(q.AssociateFenceWithLastSubmit(ctx, f)).Succeeded()
	assert.For(ctx, "associated at once").ThatInteger(q.SubmissionContext().RefCount()).Equals(2)
	assert.For(ctx, "not yet").ThatSlice(e.backend.Associated()).IsEmpty()
	sem.Signal(ctx, 5)
	assert.For(ctx, "replayed").ThatSlice(e.backend.Associated()).Equals([]api.Fence{f})
}

func TestNilSemaphore(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "signal").ThatError(q.SignalSemaphore(ctx, nil, 1)).Equals(api.ErrInvalidPointer)
	assert.For(ctx, "wait").ThatError(q.WaitSemaphore(ctx, nil, 1)).Equals(api.ErrInvalidPointer)
}

func TestQueryAllocationInfo(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	q := e.mustQueue(queue.Options{}, universal)
	assert.For(ctx, "nil").ThatError(q.QueryAllocationInfo(nil)).Equals(api.ErrInvalidPointer)
	n := 7
	assert.For(ctx, "query").ThatError(q.QueryAllocationInfo(&n)).Succeeded()
	assert.For(ctx, "entries").ThatInteger(n).Equals(0)
}

func TestDumpSink(t *testing.T) {
	e := newEnv(t, device.Settings{}, defaultProperties())
	ctx := e.ctx
	e.hw.Preambles = []api.CmdStream{fake.NewCmdStream(api.SubEngineConstantEngine, []uint32{1})}
	e.hw.Postambles = []api.CmdStream{fake.NewCmdStream(api.SubEnginePrimary, []uint32{9, 9})}
	q := e.mustQueue(queue.Options{}, universal)

	a := cmdBuffer("a")
	a.Streams = []api.CmdStream{
		fake.NewCmdStream(api.SubEnginePrimary, []uint32{2, 3}, []uint32{4}),
		fake.NewCmdStream(api.SubEngineConstantEngine, []uint32{5}),
	}
	buf := &bytes.Buffer{}
	info := submitInfo(a)
	info.DumpSink = cmddump.NewMsgpSink(buf)
	assert.For(ctx, "submit").ThatError(q.Submit(ctx, info)).Succeeded()

	records, err := cmddump.NewReader(buf).ReadAll()
	assert.For(ctx, "read").ThatError(err).Succeeded()
	type summary struct {
		idx       uint32
		pre, post bool
		sub       api.SubEngineType
		chunks    int
	}
	got := make([]summary, len(records))
	for i, r := range records {
		got[i] = summary{r.Desc.CmdBufferIdx, r.Desc.IsPreamble, r.Desc.IsPostamble, r.Desc.SubEngineType, len(r.Chunks)}
	}
	assert.For(ctx, "records").ThatSlice(got).Equals([]summary{
		{api.NoCmdBufferIndex, true, false, api.SubEngineConstantEngine, 1},
		{0, false, false, api.SubEnginePrimary, 2},
		{0, false, false, api.SubEngineConstantEngine, 1},
		{api.NoCmdBufferIndex, false, true, api.SubEnginePrimary, 1},
	})
	assert.For(ctx, "chunk").That(records[1].Chunks[0]).DeepEquals(api.CmdBufferChunkDumpDesc{
		ID: 0, Commands: []uint32{2, 3}, Size: 8,
	})
}

func TestDumpFiles(t *testing.T) {
	dir := t.TempDir()
	settings := device.Settings{
		CmdBufDumpMode:                 device.DumpModeSubmitTime,
		SubmitTimeCmdBufDumpStartFrame: 1,
		SubmitTimeCmdBufDumpEndFrame:   1,
	}
	e := newEnv(t, settings, defaultProperties())
	ctx := e.ctx
	factory := cmddump.FileFactory{Dir: dir, Format: api.DumpFormatBinary}
	q := e.mustQueue(queue.Options{Dump: factory}, universal)

	a := cmdBuffer("a")
	a.Streams = []api.CmdStream{fake.NewCmdStream(api.SubEnginePrimary, []uint32{7, 8})}
	assert.For(ctx, "frame 0").ThatBoolean(q.IsCmdDumpEnabled()).IsFalse()
	q.Submit(ctx, submitInfo(a))
	e.dev.IncFrameCount()
	assert.For(ctx, "frame 1").ThatBoolean(q.IsCmdDumpEnabled()).IsTrue()
	q.Submit(ctx, submitInfo(a))
	q.Submit(ctx, submitInfo(a))
	e.dev.IncFrameCount()
	q.Submit(ctx, submitInfo(a))

	matches, _ := filepath.Glob(filepath.Join(dir, "*"))
	desc := api.DumpFileDesc{QueueType: api.QueueTypeUniversal, QueueID: q.ID(), Frame: 1}
	first := factory.FileName(desc)
	desc.SubmitID = 1
	second := factory.FileName(desc)
	assert.For(ctx, "files").ThatSlice(matches).Equals([]string{filepath.Join(dir, first), filepath.Join(dir, second)})

	data, err := os.ReadFile(filepath.Join(dir, first))
	assert.For(ctx, "read").ThatError(err).Succeeded()
	d, err := cmddump.ReadBinary(bytes.NewReader(data), api.DumpFormatBinary)
	assert.For(ctx, "parse").ThatError(err).Succeeded()
	assert.For(ctx, "count").ThatInteger(int(d.ChunkCount)).Equals(1)
	assert.For(ctx, "commands").ThatSlice(d.Chunks[0].Commands).Equals([]uint32{7, 8})

	e.dev.SetCmdBufDumpEnabled(true)
	assert.For(ctx, "runtime switch").ThatBoolean(q.IsCmdDumpEnabled()).IsTrue()
}
