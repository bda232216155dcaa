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

// Package config loads device settings, queue layouts and scenario scripts
// from YAML.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/device"
)

// Config is a complete scenario: one device, its queues and semaphores, and
// the script of operations to run against them.
type Config struct {
	Device     Device      `yaml:"device"`
	Settings   Settings    `yaml:"settings"`
	Queues     []Queue     `yaml:"queues"`
	Semaphores []Semaphore `yaml:"semaphores"`
	Script     []Step      `yaml:"script"`
}

// Device describes the GPU.
type Device struct {
	GpuIndex        uint32              `yaml:"gpu_index"`
	FamilyID        uint32              `yaml:"family_id"`
	ERevID          uint32              `yaml:"erev_id"`
	MasterGpu       *bool               `yaml:"master_gpu"` // defaults to true
	Gfx10           bool                `yaml:"gfx10"`
	DeveloperMode   bool                `yaml:"developer_mode"`
	ShowOverlay     bool                `yaml:"show_overlay"`
	BlockIfFlipping bool                `yaml:"block_if_flipping"`
	Engines         map[string]Engine   `yaml:"engines"`
	DirectPresent   map[string][]string `yaml:"direct_present"`
}

// Engine describes one engine family.
type Engine struct {
	Available       uint32 `yaml:"available"`
	PersistentCeRam bool   `yaml:"persistent_ce_ram"`
}

// Settings are the developer settings.
type Settings struct {
	SubmitOptModeOverride uint32 `yaml:"submit_opt_mode_override"`
	IfhGpuMask            uint32 `yaml:"ifh_gpu_mask"`
	IfhMode               string `yaml:"ifh_mode"`
	Dump                  Dump   `yaml:"dump"`
}

// Dump configures submit-time command dumps.
type Dump struct {
	Mode       string `yaml:"mode"`
	Format     string `yaml:"format"`
	Directory  string `yaml:"directory"`
	StartFrame uint32 `yaml:"start_frame"`
	EndFrame   uint32 `yaml:"end_frame"`
}

// Queue describes one queue and its sub-queues.
type Queue struct {
	Name      string     `yaml:"name"`
	LogLimit  int        `yaml:"log_limit"`
	Tracked   Tracked    `yaml:"tracked"`
	SubQueues []SubQueue `yaml:"sub_queues"`
}

// Tracked configures the internal command buffer pool of a queue.
type Tracked struct {
	Capacity    int           `yaml:"capacity"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SubQueue describes one sub-queue.
type SubQueue struct {
	Type              string `yaml:"type"`
	Engine            string `yaml:"engine"` // defaults to the engine of Type
	EngineIndex       uint32 `yaml:"engine_index"`
	Priority          string `yaml:"priority"`
	ReservedCu        uint32 `yaml:"reserved_cu"`
	CeRamOffset       uint32 `yaml:"ce_ram_offset"`
	CeRamSize         uint32 `yaml:"ce_ram_size"`
	SubmitOptMode     string `yaml:"submit_opt_mode"`
	WindowedPriorBlit bool   `yaml:"windowed_prior_blit"`
}

// Semaphore declares a named semaphore.
type Semaphore struct {
	Name    string `yaml:"name"`
	Initial uint64 `yaml:"initial"`
}

// Load reads and parses the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Parsing %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML config. Unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	switch err := dec.Decode(cfg); {
	case err == io.EOF:
		return nil, errors.New("Empty config")
	case err != nil:
		return nil, errors.Wrap(err, "Decoding YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks names, references and enumerations.
func (c *Config) Validate() error {
	if _, err := c.Device.Properties(); err != nil {
		return errors.Wrap(err, "device")
	}
	if _, err := c.Settings.Device(); err != nil {
		return errors.Wrap(err, "settings")
	}
	if len(c.Queues) == 0 {
		return errors.New("No queues declared")
	}
	queues := map[string]bool{}
	for i, q := range c.Queues {
		if q.Name == "" {
			return errors.Errorf("queue %d has no name", i)
		}
		if queues[q.Name] {
			return errors.Errorf("duplicate queue %q", q.Name)
		}
		queues[q.Name] = true
		if _, err := q.CreateInfos(); err != nil {
			return errors.Wrapf(err, "queue %q", q.Name)
		}
	}
	semaphores := map[string]bool{}
	for _, s := range c.Semaphores {
		if s.Name == "" || semaphores[s.Name] {
			return errors.Errorf("invalid or duplicate semaphore name %q", s.Name)
		}
		semaphores[s.Name] = true
	}
	for i, s := range c.Script {
		if err := s.validate(queues, semaphores); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i, s.Op)
		}
	}
	return nil
}

// Queue returns the queue with the given name.
func (c *Config) Queue(name string) (Queue, bool) {
	for _, q := range c.Queues {
		if q.Name == name {
			return q, true
		}
	}
	return Queue{}, false
}

// Properties converts the device description.
func (d Device) Properties() (device.Properties, error) {
	props := device.Properties{
		GpuIndex:               d.GpuIndex,
		FamilyID:               d.FamilyID,
		ERevID:                 d.ERevID,
		IsMasterGpu:            d.MasterGpu == nil || *d.MasterGpu,
		IsGfx10:                d.Gfx10,
		SupportBlockIfFlipping: d.BlockIfFlipping,
		ShowDevDriverOverlay:   d.ShowOverlay,
		DeveloperMode:          d.DeveloperMode,
	}
	for name, e := range d.Engines {
		t, ok := api.ParseEngineType(name)
		if !ok {
			return props, errors.Errorf("unknown engine type %q", name)
		}
		props.Engines[t] = device.EngineProperties{
			NumAvailable:           e.Available,
			SupportPersistentCeRam: e.PersistentCeRam,
		}
	}
	for name, modes := range d.DirectPresent {
		t, ok := api.ParseQueueType(name)
		if !ok {
			return props, errors.Errorf("unknown queue type %q", name)
		}
		for _, m := range modes {
			s, ok := presentSupport[m]
			if !ok {
				return props, errors.Errorf("unknown present mode %q", m)
			}
			props.DirectPresentFor[t] |= s
		}
	}
	return props, nil
}

// Device converts the developer settings.
func (s Settings) Device() (device.Settings, error) {
	out := device.Settings{
		SubmitOptModeOverride:          s.SubmitOptModeOverride,
		IfhGpuMask:                     s.IfhGpuMask,
		CmdBufDumpDirectory:            s.Dump.Directory,
		SubmitTimeCmdBufDumpStartFrame: s.Dump.StartFrame,
		SubmitTimeCmdBufDumpEndFrame:   s.Dump.EndFrame,
	}
	var err error
	if out.IfhMode, err = lookup(ifhModes, s.IfhMode, "ifh mode"); err != nil {
		return out, err
	}
	if out.CmdBufDumpMode, err = lookup(dumpModes, s.Dump.Mode, "dump mode"); err != nil {
		return out, err
	}
	if s.Dump.Format != "" {
		f, ok := api.ParseDumpFormat(s.Dump.Format)
		if !ok {
			return out, errors.Errorf("unknown dump format %q", s.Dump.Format)
		}
		out.CmdBufDumpFormat = f
	}
	return out, nil
}

// CreateInfos converts the sub-queue descriptions.
func (q Queue) CreateInfos() ([]api.QueueCreateInfo, error) {
	if len(q.SubQueues) == 0 {
		return nil, errors.New("no sub-queues")
	}
	out := make([]api.QueueCreateInfo, len(q.SubQueues))
	for i, s := range q.SubQueues {
		info, err := s.createInfo()
		if err != nil {
			return nil, errors.Wrapf(err, "sub-queue %d", i)
		}
		out[i] = info
	}
	return out, nil
}

func (s SubQueue) createInfo() (api.QueueCreateInfo, error) {
	info := api.QueueCreateInfo{
		EngineIndex:           s.EngineIndex,
		NumReservedCu:         s.ReservedCu,
		PersistentCeRamOffset: s.CeRamOffset,
		PersistentCeRamSize:   s.CeRamSize,
		WindowedPriorBlit:     s.WindowedPriorBlit,
	}
	t, ok := api.ParseQueueType(s.Type)
	if !ok {
		return info, errors.Errorf("unknown queue type %q", s.Type)
	}
	info.QueueType = t
	// Queue and engine types share their numbering.
	info.EngineType = api.EngineType(t)
	if s.Engine != "" {
		if info.EngineType, ok = api.ParseEngineType(s.Engine); !ok {
			return info, errors.Errorf("unknown engine type %q", s.Engine)
		}
	}
	var err error
	if info.Priority, err = lookup(priorities, s.Priority, "priority"); err != nil {
		return info, err
	}
	if info.SubmitOptMode, err = lookup(submitOptModes, s.SubmitOptMode, "submit opt mode"); err != nil {
		return info, err
	}
	return info, nil
}

var (
	presentSupport = map[string]api.PresentModeSupport{
		"windowed":            api.SupportWindowedPresent,
		"windowed-prior-blit": api.SupportWindowedPriorBlitPresent,
		"fullscreen":          api.SupportFullscreenPresent,
	}
	presentModes = map[string]api.PresentMode{
		"windowed":   api.PresentModeWindowed,
		"fullscreen": api.PresentModeFullscreen,
	}
	priorities = map[string]api.QueuePriority{
		"normal":   api.QueuePriorityNormal,
		"idle":     api.QueuePriorityIdle,
		"medium":   api.QueuePriorityMedium,
		"high":     api.QueuePriorityHigh,
		"realtime": api.QueuePriorityRealtime,
	}
	submitOptModes = map[string]api.SubmitOptMode{
		"default":               api.SubmitOptModeDefault,
		"disabled":              api.SubmitOptModeDisabled,
		"min-kernel-submits":    api.SubmitOptModeMinKernelSubmits,
		"min-user-mode-submits": api.SubmitOptModeMinUserModeSubmits,
	}
	ifhModes = map[string]api.IfhMode{
		"disabled": api.IfhModeDisabled,
		"pal":      api.IfhModePal,
		"kmd":      api.IfhModeKmd,
	}
	dumpModes = map[string]device.DumpMode{
		"disabled":    device.DumpModeDisabled,
		"record-time": device.DumpModeRecordTime,
		"submit-time": device.DumpModeSubmitTime,
	}
)

// lookup returns the zero value for an empty name.
func lookup[T any](m map[string]T, name, what string) (T, error) {
	var zero T
	if name == "" {
		return zero, nil
	}
	v, ok := m[name]
	if !ok {
		return zero, errors.Errorf("unknown %s %q", what, name)
	}
	return v, nil
}
