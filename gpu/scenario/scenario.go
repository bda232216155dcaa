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

// Package scenario runs scripted queue operations against fake hardware.
package scenario

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/itrainl4/pal/core/event/task"
	"github.com/itrainl4/pal/core/fault"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/cmddump"
	"github.com/itrainl4/pal/gpu/config"
	"github.com/itrainl4/pal/gpu/device"
	"github.com/itrainl4/pal/gpu/fake"
	"github.com/itrainl4/pal/gpu/queue"
	"github.com/itrainl4/pal/gpu/tracked"
)

const (
	swapChainImages = 3
	// type-3 NOP header, used to fill generated command streams.
	nopPacket = 0xC0001000
)

// Report summarises a run.
type Report struct {
	Steps       int
	Submissions int
	Presents    int
	Frames      uint32
	Events      []string
	Allocations alloc.Stats
}

func (r Report) String() string {
	return fmt.Sprintf("%d steps, %d submissions, %d presents, %d frames, %v",
		r.Steps, r.Submissions, r.Presents, r.Frames, r.Allocations)
}

// Runner owns the device, queues and fake collaborators of one scenario.
type Runner struct {
	// Sink, if not nil, is attached to every scripted submission.
	Sink api.DumpSink

	cfg        *config.Config
	budget     *alloc.Budget
	dev        *device.Registry
	backend    *fake.Backend
	resources  *fake.Resources
	conn       *fake.Conn
	queues     map[string]*queue.Queue
	order      []string
	semaphores map[string]*fake.Semaphore
	fences     map[string]*fake.Fence
	image      *fake.Image
	swapChain  *fake.SwapChain
	steps      int
}

// New builds the device and every queue of cfg.
func New(ctx context.Context, cfg *config.Config) (*Runner, error) {
	settings, err := cfg.Settings.Device()
	if err != nil {
		return nil, err
	}
	props, err := cfg.Device.Properties()
	if err != nil {
		return nil, err
	}
	hw := &fake.Hardware{
		InitialSubmit: true,
		Preambles:     []api.CmdStream{stream(0x100, 2)},
		Postambles:    []api.CmdStream{stream(0x200, 1)},
	}
	r := &Runner{
		cfg:        cfg,
		budget:     alloc.NewBudget(0),
		dev:        device.New(settings, props),
		backend:    &fake.Backend{SignalFences: true},
		resources:  &fake.Resources{Streams: []api.CmdStream{stream(0x300, 4)}},
		conn:       &fake.Conn{},
		queues:     map[string]*queue.Queue{},
		semaphores: map[string]*fake.Semaphore{},
		fences:     map[string]*fake.Fence{},
		image: &fake.Image{
			Presentable: true,
			Flippable:   true,
			Mem:         &fake.Memory{Name: "frontbuffer", Flippable: true},
		},
		swapChain: &fake.SwapChain{Images: swapChainImages},
	}
	r.dev.Gfx = hw
	r.dev.Oss = fake.Oss{Hardware: hw}
	r.dev.Resources = r.resources
	r.dev.Overlay = r.resources

	ctx = alloc.Put(ctx, r.budget)
	for _, s := range cfg.Semaphores {
		r.semaphores[s.Name] = fake.NewSemaphore(s.Name, s.Initial)
	}
	for _, qc := range cfg.Queues {
		q, err := r.newQueue(ctx, qc)
		if err != nil {
			r.Close(ctx)
			return nil, errors.Wrapf(err, "Creating queue %q", qc.Name)
		}
		r.queues[qc.Name] = q
		r.order = append(r.order, qc.Name)
	}
	log.I(ctx, "Created %d queues", len(r.order))
	return r, nil
}

func (r *Runner) newQueue(ctx context.Context, qc config.Queue) (*queue.Queue, error) {
	infos, err := qc.CreateInfos()
	if err != nil {
		return nil, err
	}
	opts := queue.Options{
		LogLimit: qc.LogLimit,
		Tracked: tracked.Config{
			Capacity:    qc.Tracked.Capacity,
			RetryDelay:  qc.Tracked.RetryDelay,
			MaxAttempts: qc.Tracked.MaxAttempts,
		},
	}
	if s := r.dev.Settings; s.CmdBufDumpMode == device.DumpModeSubmitTime {
		opts.Dump = cmddump.FileFactory{
			Dir:      s.CmdBufDumpDirectory,
			Format:   s.CmdBufDumpFormat,
			FamilyID: r.dev.Properties.FamilyID,
			ERevID:   r.dev.Properties.ERevID,
		}
	}
	q, err := queue.New(ctx, r.dev, r.backend, r.conn, infos, opts)
	if err != nil {
		return nil, err
	}
	if err := q.LateInit(ctx); err != nil {
		q.Destroy(ctx)
		return nil, err
	}
	return q, nil
}

// Queue returns the named queue.
func (r *Runner) Queue(name string) *queue.Queue { return r.queues[name] }

// Backend returns the fake OS path all queues submit through.
func (r *Runner) Backend() *fake.Backend { return r.backend }

// Run executes the script, stopping at the first step that fails or whose
// checks do not hold.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	ctx = alloc.Put(ctx, r.budget)
	for i, s := range r.cfg.Script {
		if task.Stopped(ctx) {
			return r.report(), task.StopReason(ctx)
		}
		if err := r.guardedStep(ctx, s); err != nil {
			return r.report(), errors.Wrapf(err, "step %d (%s)", i, s.Op)
		}
		r.steps++
	}
	return r.report(), nil
}

// guardedStep runs s, turning a panic raised by the queue or an attached sink
// into the step's error.
func (r *Runner) guardedStep(ctx context.Context, s config.Step) (err error) {
	defer func() {
		if e := recover(); e != nil {
			log.E(ctx, "Panic during %s: %v", s.Op, e)
			err = errors.Wrap(fault.From(e), "Panicked")
		}
	}()
	return r.step(ctx, s)
}

func (r *Runner) report() Report {
	return Report{
		Steps:       r.steps,
		Submissions: len(r.backend.Submissions()),
		Presents:    len(r.backend.Presents()) + len(r.swapChain.Presents()),
		Frames:      r.dev.FrameCount(),
		Events:      r.backend.Events(),
		Allocations: r.budget.Stats(),
	}
}

func (r *Runner) step(ctx context.Context, s config.Step) error {
	ctx = log.V{"op": s.Op, "queue": s.Queue}.Bind(ctx)
	q := r.queues[s.Queue]
	err := r.do(ctx, q, s)
	switch {
	case s.Expect != "" && err == nil:
		return errors.Errorf("expected error %q", s.Expect)
	case s.Expect != "" && err.Error() != s.Expect:
		return errors.Wrapf(err, "expected error %q", s.Expect)
	case s.Expect == "" && err != nil:
		return err
	}
	if q == nil {
		return nil
	}
	if s.Stalled != nil && q.Stalled() != *s.Stalled {
		return errors.Errorf("stalled is %v, expected %v", q.Stalled(), *s.Stalled)
	}
	if s.Pending != nil && len(q.Pending()) != *s.Pending {
		return errors.Errorf("%d deferred operations %v, expected %d", len(q.Pending()), q.Pending(), *s.Pending)
	}
	if s.Batched != nil && q.BatchedSubmissions() != *s.Batched {
		return errors.Errorf("%d batched submissions, expected %d", q.BatchedSubmissions(), *s.Batched)
	}
	return nil
}

func (r *Runner) do(ctx context.Context, q *queue.Queue, s config.Step) error {
	switch s.Op {
	case config.OpSubmit:
		return q.Submit(ctx, r.submitInfo(q, s))
	case config.OpDummySubmit:
		return q.DummySubmit(ctx, false)
	case config.OpSignal:
		return q.SignalSemaphore(ctx, r.semaphores[s.Semaphore], s.Value)
	case config.OpWait:
		return q.WaitSemaphore(ctx, r.semaphores[s.Semaphore], s.Value)
	case config.OpHostSignal:
		return r.semaphores[s.Semaphore].Signal(ctx, s.Value)
	case config.OpPresent:
		mode, err := s.PresentMode()
		if err != nil {
			return err
		}
		return q.PresentDirect(ctx, &api.PresentDirectInfo{
			PresentMode: mode,
			SrcImage:    r.image,
			Fullscreen:  mode == api.PresentModeFullscreen,
		}, s.Client)
	case config.OpPresentSwapChain:
		mode, err := s.PresentMode()
		if err != nil {
			return err
		}
		return q.PresentSwapChain(ctx, &api.PresentSwapChainInfo{
			PresentMode: mode,
			SrcImage:    r.image,
			SwapChain:   r.swapChain,
			ImageIndex:  s.ImageIndex,
			NotifyOnly:  s.NotifyOnly,
		})
	case config.OpDelay:
		return q.Delay(ctx, s.Delay)
	case config.OpDelayAfterVsync:
		return q.DelayAfterVsync(ctx, s.Delay, fake.Screen(s.Screen))
	case config.OpAssociateFence:
		return q.AssociateFenceWithLastSubmit(ctx, r.fence(s.Fence))
	case config.OpRelease:
		return q.ReleaseFromStalledState(ctx)
	case config.OpWaitIdle:
		return q.WaitIdle(ctx)
	case config.OpCheck:
		return nil
	default:
		return errors.Errorf("unknown op %q", s.Op)
	}
}

func (r *Runner) submitInfo(q *queue.Queue, s config.Step) *api.MultiSubmitInfo {
	cbs := make([]api.CmdBuffer, len(s.CmdBuffers))
	for i, name := range s.CmdBuffers {
		cb := fake.NewCmdBuffer(name, q.QueueType())
		cb.Streams = []api.CmdStream{stream(uint32(0x400+i), 3)}
		cbs[i] = cb
	}
	info := &api.MultiSubmitInfo{
		PerSubQueueInfoCount: 1,
		PerSubQueueInfo: []api.PerSubQueueSubmitInfo{{
			CmdBufferCount: uint32(len(cbs)),
			CmdBuffers:     cbs,
		}},
		DumpSink: r.Sink,
	}
	if s.Fence != "" {
		info.FenceCount = 1
		info.Fences = []api.Fence{r.fence(s.Fence)}
	}
	return info
}

func (r *Runner) fence(name string) *fake.Fence {
	f, ok := r.fences[name]
	if !ok {
		f = &fake.Fence{Name: name}
		r.fences[name] = f
	}
	return f
}

// Close waits for and destroys every queue. Queues that still hold deferred
// operations are reported and left alive.
func (r *Runner) Close(ctx context.Context) error {
	for _, f := range r.fences {
		f.Destroy(ctx)
	}
	errs := fault.One{}
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		q := r.queues[name]
		if pending := q.Pending(); len(pending) > 0 {
			log.W(ctx, "Queue %q still has deferred operations: %v", name, pending)
			errs.Collect(errors.Errorf("queue %q destroyed while stalled on %d operations", name, len(pending)))
			continue
		}
		errs.Collect(errors.Wrapf(q.Destroy(ctx), "Destroying queue %q", name))
		delete(r.queues, name)
	}
	r.order = r.order[:0]
	return errs.First()
}

// stream returns a single chunk of n NOP packets tagged with id.
func stream(id uint32, n int) api.CmdStream {
	dwords := make([]uint32, 0, 2*n)
	for i := 0; i < n; i++ {
		dwords = append(dwords, nopPacket, id)
	}
	return fake.NewCmdStream(api.SubEnginePrimary, dwords)
}
