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

package config

import (
	"github.com/pkg/errors"

	"github.com/itrainl4/pal/gpu/api"
)

// Op is a scenario operation.
type Op string

const (
	OpSubmit           Op = "submit"
	OpDummySubmit      Op = "dummy-submit"
	OpSignal           Op = "signal"
	OpWait             Op = "wait"
	OpHostSignal       Op = "host-signal"
	OpPresent          Op = "present"
	OpPresentSwapChain Op = "present-swapchain"
	OpDelay            Op = "delay"
	OpDelayAfterVsync  Op = "delay-after-vsync"
	OpAssociateFence   Op = "associate-fence"
	OpRelease          Op = "release"
	OpWaitIdle         Op = "wait-idle"
	OpCheck            Op = "check"
)

// Step is one scripted operation, optionally followed by checks on the
// queue's state.
type Step struct {
	Op        Op     `yaml:"op"`
	Queue     string `yaml:"queue"`
	Semaphore string `yaml:"semaphore"`
	Value     uint64 `yaml:"value"`
	// CmdBuffers names the command buffers of a submit. They are all
	// submitted to the first sub-queue.
	CmdBuffers []string `yaml:"cmd_buffers"`
	Fence      string   `yaml:"fence"`
	Mode       string   `yaml:"mode"`
	Client     bool     `yaml:"client"`
	ImageIndex uint32   `yaml:"image_index"`
	NotifyOnly bool     `yaml:"notify_only"`
	Delay      float32  `yaml:"delay"`
	Screen     string   `yaml:"screen"`

	// Expect is the message of the error the operation must fail with.
	Expect  string `yaml:"expect"`
	Stalled *bool  `yaml:"stalled"`
	Pending *int   `yaml:"pending"`
	Batched *int   `yaml:"batched"`
}

// PresentMode returns the step's present mode.
func (s Step) PresentMode() (api.PresentMode, error) {
	return lookup(presentModes, s.Mode, "present mode")
}

func (s Step) validate(queues, semaphores map[string]bool) error {
	if (s.Op != OpHostSignal || s.Queue != "") && !queues[s.Queue] {
		return errors.Errorf("unknown queue %q", s.Queue)
	}
	switch s.Op {
	case OpSignal, OpWait, OpHostSignal:
		if !semaphores[s.Semaphore] {
			return errors.Errorf("unknown semaphore %q", s.Semaphore)
		}
	case OpSubmit:
		if len(s.CmdBuffers) == 0 && s.Fence == "" {
			return errors.New("nothing to submit")
		}
	case OpAssociateFence:
		if s.Fence == "" {
			return errors.New("no fence")
		}
	case OpPresent, OpPresentSwapChain:
		if _, err := s.PresentMode(); err != nil {
			return err
		}
	case OpDummySubmit, OpDelay, OpDelayAfterVsync, OpRelease, OpWaitIdle, OpCheck:
	default:
		return errors.Errorf("unknown op %q", s.Op)
	}
	return nil
}
