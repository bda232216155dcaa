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

package subctx_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/itrainl4/pal/core/assert"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/subctx"
)

type conn struct{ closed atomic.Int32 }

func (c *conn) Close(context.Context) error {
	c.closed.Add(1)
	return nil
}

func TestNewOutOfMemory(t *testing.T) {
	ctx := log.Testing(t)
	_, err := subctx.New(ctx, alloc.NewBudget(1), &conn{})
	assert.For(ctx, "err").ThatError(err).HasCause(api.ErrOutOfMemory)
}

func TestLastReleaseDestroys(t *testing.T) {
	ctx := log.Testing(t)
	const fences = 16
	budget := alloc.NewBudget(0)
	c := &conn{}
	sc, err := subctx.New(ctx, budget, c)
	assert.For(ctx, "new").ThatError(err).Succeeded()
	for i := 0; i < fences; i++ {
		sc.TakeReference()
	}
	for i := 0; i <= fences; i++ {
		assert.For(ctx, "destroyed early").ThatBoolean(sc.Destroyed()).IsFalse()
		sc.ReleaseReference(ctx)
		if i < fences {
			assert.For(ctx, "refs").ThatInteger(sc.RefCount()).Equals(fences - i)
		}
	}
	assert.For(ctx, "destroyed").ThatBoolean(sc.Destroyed()).IsTrue()
	assert.For(ctx, "closes").ThatInteger(int(c.closed.Load())).Equals(1)
	assert.For(ctx, "bytes").That(budget.Stats()).Equals(alloc.Stats{})
}

func TestConcurrentRelease(t *testing.T) {
	ctx := log.Testing(t)
	c := &conn{}
	sc, _ := subctx.New(ctx, alloc.NewBudget(0), c)
	const n = 64
	for i := 0; i < n; i++ {
		sc.TakeReference()
	}
	wg := sync.WaitGroup{}
	for i := 0; i < n+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.ReleaseReference(ctx)
		}()
	}
	wg.Wait()
	assert.For(ctx, "closes").ThatInteger(int(c.closed.Load())).Equals(1)
}

func TestOverReleasePanics(t *testing.T) {
	ctx := log.Testing(t)
	sc, _ := subctx.New(ctx, alloc.NewBudget(0), nil)
	sc.ReleaseReference(ctx)
	defer func() {
		assert.For(ctx, "panic").That(recover()).IsNotNil()
	}()
	sc.ReleaseReference(ctx)
}
