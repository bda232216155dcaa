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

package api

import "github.com/itrainl4/pal/core/fault"

const (
	// ErrInvalidPointer is returned when a required pointer or array is nil.
	ErrInvalidPointer = fault.Const("Invalid pointer")
	// ErrInvalidValue is returned when a count or flag is out of the allowed
	// range, or unsupported on this platform or queue.
	ErrInvalidValue = fault.Const("Invalid value")
	// ErrIncompatibleQueue is returned when a command buffer was built for a
	// different queue type.
	ErrIncompatibleQueue = fault.Const("Incompatible queue")
	// ErrIncompleteCommandBuffer is returned when a command buffer is not in the
	// executable state.
	ErrIncompleteCommandBuffer = fault.Const("Incomplete command buffer")
	// ErrOutOfMemory is returned when packaging or log append runs out of memory.
	ErrOutOfMemory = fault.Const("Out of memory")
	// ErrUnavailable is returned when an operation is not supported on the
	// queue type.
	ErrUnavailable = fault.Const("Unavailable")
	// ErrWindowedPresentUnavailable is returned for windowed presents on a GPU
	// that is not the display master.
	ErrWindowedPresentUnavailable = fault.Const("Windowed present unavailable")
	// ErrIncompatibleDevice is returned when the device lacks the hardware
	// block a queue type needs.
	ErrIncompatibleDevice = fault.Const("Incompatible device")
	// ErrUnknown is returned for queue types the core does not recognise.
	ErrUnknown = fault.Const("Unknown error")
	// ErrNotReady is returned by Fence.Status while the fence is unsignalled.
	ErrNotReady = fault.Const("Not ready")
)
