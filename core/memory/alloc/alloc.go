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

// Package alloc implements byte-budget accounting for long-lived driver
// objects.
//
// Allocations are made by the Go runtime. An Allocator only tracks how many
// bytes and allocations are outstanding against an optional limit, so that
// running out of budget can be reported as an ordinary error.
package alloc

import (
	"context"
	"fmt"
	"sync"

	"github.com/itrainl4/pal/core/context/keys"
	"github.com/itrainl4/pal/core/fault"
)

// ErrOutOfBudget is returned by Reserve when the request would exceed the
// allocator's limit.
const ErrOutOfBudget = fault.Const("Allocation exceeds budget")

// Allocator accounts for reserved bytes.
type Allocator interface {
	// Reserve accounts for a new allocation of size bytes.
	Reserve(size int) error
	// Release returns an allocation of size bytes previously reserved.
	Release(size int)
	// Stats returns the current outstanding allocations.
	Stats() Stats
}

// Stats holds statistics of an Allocator.
type Stats struct {
	NumAllocations    int
	NumBytesAllocated int
}

func (s Stats) String() string {
	return fmt.Sprintf("{allocs: %v, bytes: %v}", s.NumAllocations, s.NumBytesAllocated)
}

// Budget is an Allocator with an optional byte limit.
type Budget struct {
	mutex sync.Mutex
	limit int
	stats Stats
}

// NewBudget returns a Budget that refuses reservations that would take the
// outstanding byte count over limit. A limit <= 0 means no limit.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

// Reserve implements Allocator.
func (b *Budget) Reserve(size int) error {
	if size < 0 {
		panic(fmt.Errorf("negative reservation %d", size))
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.limit > 0 && b.stats.NumBytesAllocated+size > b.limit {
		return ErrOutOfBudget
	}
	b.stats.NumAllocations++
	b.stats.NumBytesAllocated += size
	return nil
}

// Release implements Allocator.
func (b *Budget) Release(size int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.stats.NumAllocations == 0 || b.stats.NumBytesAllocated < size {
		panic(fmt.Errorf("release of %d bytes exceeds outstanding %v", size, b.stats))
	}
	b.stats.NumAllocations--
	b.stats.NumBytesAllocated -= size
}

// Stats implements Allocator.
func (b *Budget) Stats() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

// SetLimit changes the byte limit. Outstanding reservations are unaffected.
func (b *Budget) SetLimit(limit int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.limit = limit
}

type allocKeyTy string

const allocKey = allocKeyTy("alloc")

// Get returns the Allocator attached to the given context, or an unlimited
// Budget if there is none.
func Get(ctx context.Context) Allocator {
	if val := ctx.Value(allocKey); val != nil {
		return val.(Allocator)
	}
	return NewBudget(0)
}

// Put amends a Context by attaching an Allocator reference to it.
func Put(ctx context.Context, a Allocator) context.Context {
	return keys.WithValue(ctx, allocKey, a)
}

// Offsetable is used as an anonymous field of types that require a current
// offset value.
type Offsetable struct{ Offset int }

// AlignUp rounds-up the current offset so that is is a multiple of n.
func (o *Offsetable) AlignUp(n int) {
	if n <= 1 {
		return
	}
	pad := n - o.Offset%n
	if pad == n {
		return
	}
	o.Offset += pad
}
