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

package alloc_test

import (
	"context"
	"testing"

	"github.com/itrainl4/pal/core/assert"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
)

func TestBudget(t *testing.T) {
	ctx := log.Testing(t)
	b := alloc.NewBudget(100)
	assert.For(ctx, "first").ThatError(b.Reserve(60)).Succeeded()
	assert.For(ctx, "over").ThatError(b.Reserve(41)).Equals(alloc.ErrOutOfBudget)
	assert.For(ctx, "fits").ThatError(b.Reserve(40)).Succeeded()
	assert.For(ctx, "stats").That(b.Stats()).Equals(alloc.Stats{NumAllocations: 2, NumBytesAllocated: 100})
	b.Release(60)
	b.Release(40)
	assert.For(ctx, "empty").That(b.Stats()).Equals(alloc.Stats{})
}

func TestReleaseUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	alloc.NewBudget(0).Release(1)
}

func TestContext(t *testing.T) {
	ctx := log.Testing(t)
	b := alloc.NewBudget(8)
	got := alloc.Get(alloc.Put(context.Background(), b))
	assert.For(ctx, "allocator").That(got).Equals(alloc.Allocator(b))
}

func TestAlignUp(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct{ offset, align, expect int }{
		{0, 8, 0}, {1, 8, 8}, {8, 8, 8}, {9, 4, 12}, {5, 1, 5},
	} {
		o := alloc.Offsetable{Offset: test.offset}
		o.AlignUp(test.align)
		assert.For(ctx, "AlignUp(%d, %d)", test.offset, test.align).ThatInteger(o.Offset).Equals(test.expect)
	}
}
