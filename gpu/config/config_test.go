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

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/itrainl4/pal/core/assert"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/config"
	"github.com/itrainl4/pal/gpu/device"
)

const full = `
device:
  family_id: 143
  gfx10: true
  block_if_flipping: true
  engines:
    Universal: {available: 1, persistent_ce_ram: true}
    Dma: {available: 2}
  direct_present:
    Universal: [windowed, fullscreen]
settings:
  submit_opt_mode_override: 2
  ifh_mode: kmd
  dump:
    mode: submit-time
    format: binary-headers
    directory: dumps
    start_frame: 1
    end_frame: 4
queues:
  - name: gfx
    log_limit: 8
    tracked: {capacity: 2, retry_delay: 5ms}
    sub_queues:
      - type: Universal
        priority: high
        ce_ram_offset: 64
        ce_ram_size: 16
        submit_opt_mode: min-kernel-submits
  - name: copy
    sub_queues:
      - {type: Dma, engine_index: 1}
semaphores:
  - {name: s, initial: 1}
script:
  - {op: wait, queue: gfx, semaphore: s, value: 2, stalled: true}
  - {op: submit, queue: gfx, cmd_buffers: [a, b], pending: 2}
  - {op: host-signal, semaphore: s, value: 2}
  - {op: present, queue: gfx, mode: windowed, client: true}
`

func TestParse(t *testing.T) {
	ctx := log.Testing(t)
	cfg, err := config.Parse([]byte(full))
	if !assert.For(ctx, "parse").ThatError(err).Succeeded() {
		return
	}

	props, err := cfg.Device.Properties()
	assert.For(ctx, "props").ThatError(err).Succeeded()
	assert.For(ctx, "family").That(props.FamilyID).Equals(uint32(143))
	assert.For(ctx, "master").ThatBoolean(props.IsMasterGpu).IsTrue()
	assert.For(ctx, "gfx10").ThatBoolean(props.IsGfx10).IsTrue()
	assert.For(ctx, "dma engines").That(props.Engines[api.EngineTypeDma].NumAvailable).Equals(uint32(2))
	assert.For(ctx, "ce ram").ThatBoolean(props.Engines[api.EngineTypeUniversal].SupportPersistentCeRam).IsTrue()
	assert.For(ctx, "present").That(props.DirectPresentFor[api.QueueTypeUniversal]).Equals(
		api.SupportWindowedPresent | api.SupportFullscreenPresent)

	settings, err := cfg.Settings.Device()
	assert.For(ctx, "settings").ThatError(err).Succeeded()
	assert.For(ctx, "settings").That(settings).DeepEquals(device.Settings{
		SubmitOptModeOverride:          2,
		IfhMode:                        api.IfhModeKmd,
		CmdBufDumpMode:                 device.DumpModeSubmitTime,
		CmdBufDumpFormat:               api.DumpFormatBinaryHeaders,
		CmdBufDumpDirectory:            "dumps",
		SubmitTimeCmdBufDumpStartFrame: 1,
		SubmitTimeCmdBufDumpEndFrame:   4,
	})

	gfx, ok := cfg.Queue("gfx")
	assert.For(ctx, "gfx").ThatBoolean(ok).IsTrue()
	assert.For(ctx, "log limit").ThatInteger(gfx.LogLimit).Equals(8)
	assert.For(ctx, "retry").That(gfx.Tracked.RetryDelay).Equals(5 * time.Millisecond)
	infos, err := gfx.CreateInfos()
	assert.For(ctx, "gfx infos").ThatError(err).Succeeded()
	assert.For(ctx, "gfx infos").ThatSlice(infos).Equals([]api.QueueCreateInfo{{
		QueueType:             api.QueueTypeUniversal,
		EngineType:            api.EngineTypeUniversal,
		Priority:              api.QueuePriorityHigh,
		PersistentCeRamOffset: 64,
		PersistentCeRamSize:   16,
		SubmitOptMode:         api.SubmitOptModeMinKernelSubmits,
	}})

	copyQueue, _ := cfg.Queue("copy")
	infos, err = copyQueue.CreateInfos()
	assert.For(ctx, "copy infos").ThatError(err).Succeeded()
	assert.For(ctx, "copy engine").That(infos[0].EngineType).Equals(api.EngineTypeDma)
	assert.For(ctx, "copy index").That(infos[0].EngineIndex).Equals(uint32(1))

	assert.For(ctx, "steps").ThatSlice(cfg.Script).IsLength(4)
	assert.For(ctx, "stalled").That(*cfg.Script[0].Stalled).Equals(true)
	assert.For(ctx, "cmd buffers").ThatSlice(cfg.Script[1].CmdBuffers).Equals([]string{"a", "b"})
	mode, err := cfg.Script[3].PresentMode()
	assert.For(ctx, "mode").ThatError(err).Succeeded()
	assert.For(ctx, "mode").That(mode).Equals(api.PresentModeWindowed)
}

func TestParseErrors(t *testing.T) {
	ctx := log.Testing(t)
	const queue = "queues: [{name: q, sub_queues: [{type: Universal}]}]\n"
	for _, test := range []struct {
		name   string
		yaml   string
		expect string
	}{
		{"empty", "", "Empty config"},
		{"unknown field", queue + "bogus: 1\n", "field bogus not found"},
		{"no queues", "device: {}\n", "No queues declared"},
		{"unnamed queue", "queues: [{sub_queues: [{type: Universal}]}]\n", "queue 0 has no name"},
		{"duplicate queue", "queues: [{name: q, sub_queues: [{type: Dma}]}, {name: q, sub_queues: [{type: Dma}]}]\n", `duplicate queue "q"`},
		{"no sub-queues", "queues: [{name: q}]\n", "no sub-queues"},
		{"queue type", "queues: [{name: q, sub_queues: [{type: Video}]}]\n", `unknown queue type "Video"`},
		{"engine type", "queues: [{name: q, sub_queues: [{type: Dma, engine: Video}]}]\n", `unknown engine type "Video"`},
		{"priority", "queues: [{name: q, sub_queues: [{type: Dma, priority: urgent}]}]\n", `unknown priority "urgent"`},
		{"engine", queue + "device: {engines: {Video: {available: 1}}}\n", `unknown engine type "Video"`},
		{"present", queue + "device: {direct_present: {Universal: [borderless]}}\n", `unknown present mode "borderless"`},
		{"ifh", queue + "settings: {ifh_mode: fast}\n", `unknown ifh mode "fast"`},
		{"dump mode", queue + "settings: {dump: {mode: always}}\n", `unknown dump mode "always"`},
		{"dump format", queue + "settings: {dump: {format: json}}\n", `unknown dump format "json"`},
		{"semaphore", queue + "semaphores: [{name: s}, {name: s}]\n", `duplicate semaphore name "s"`},
		{"step queue", queue + "script: [{op: release, queue: r}]\n", `unknown queue "r"`},
		{"step semaphore", queue + "script: [{op: wait, queue: q, semaphore: s}]\n", `unknown semaphore "s"`},
		{"step op", queue + "script: [{op: flush, queue: q}]\n", `unknown op "flush"`},
		{"empty submit", queue + "script: [{op: submit, queue: q}]\n", "nothing to submit"},
		{"fence", queue + "script: [{op: associate-fence, queue: q}]\n", "no fence"},
		{"present mode", queue + "script: [{op: present, queue: q, mode: stretched}]\n", `unknown present mode "stretched"`},
	} {
		_, err := config.Parse([]byte(test.yaml))
		if assert.For(ctx, test.name).ThatError(err).Failed() {
			assert.For(ctx, "%s message", test.name).Add("error", err).
				ThatBoolean(strings.Contains(err.Error(), test.expect)).IsTrue()
		}
	}
}

func TestLoad(t *testing.T) {
	ctx := log.Testing(t)
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	assert.For(ctx, "write").ThatError(os.WriteFile(path, []byte(full), 0644)).Succeeded()

	cfg, err := config.Load(path)
	assert.For(ctx, "load").ThatError(err).Succeeded()
	assert.For(ctx, "queues").ThatSlice(cfg.Queues).IsLength(2)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if assert.For(ctx, "missing").ThatError(err).Failed() {
		assert.For(ctx, "missing cause").ThatBoolean(os.IsNotExist(errors.Cause(err))).IsTrue()
	}
}
