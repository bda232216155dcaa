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
	"sync"

	"github.com/itrainl4/pal/core/fault"
	"github.com/itrainl4/pal/gpu/api"
)

// Semaphore is a timeline semaphore. A wait for a value at or below the
// current payload is satisfied immediately.
type Semaphore struct {
	Name string

	mutex   sync.Mutex
	value   uint64
	waiters []waiter
}

type waiter struct {
	w     api.Waiter
	value uint64
}

// NewSemaphore returns a semaphore with the given initial payload.
func NewSemaphore(name string, value uint64) *Semaphore {
	return &Semaphore{Name: name, value: value}
}

func (s *Semaphore) String() string { return s.Name }

// Value returns the current payload.
func (s *Semaphore) Value() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.value
}

// Waiting returns the number of registered waiters.
func (s *Semaphore) Waiting() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.waiters)
}

// Signal implements api.Semaphore. Released waiters are notified after the
// semaphore lock is dropped.
func (s *Semaphore) Signal(ctx context.Context, value uint64) error {
	s.mutex.Lock()
	if value > s.value {
		s.value = value
	}
	var ready []api.Waiter
	pending := s.waiters[:0]
	for _, w := range s.waiters {
		if w.value <= s.value {
			ready = append(ready, w.w)
		} else {
			pending = append(pending, w)
		}
	}
	s.waiters = pending
	s.mutex.Unlock()

	errs := fault.One{}
	for _, w := range ready {
		errs.Collect(w.ReleaseFromStalledState(ctx))
	}
	return errs.First()
}

// Wait implements api.Semaphore.
func (s *Semaphore) Wait(ctx context.Context, w api.Waiter, value uint64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if value <= s.value {
		return false, nil
	}
	w.Stall()
	s.waiters = append(s.waiters, waiter{w, value})
	return true, nil
}
