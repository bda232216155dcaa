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

// Package subctx implements the reference-counted handle to a queue's
// connection to the OS scheduler.
package subctx

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/core/memory/alloc"
	"github.com/itrainl4/pal/gpu/api"
)

// Conn is an open connection to the OS scheduler.
type Conn interface {
	Close(ctx context.Context) error
}

// Context is shared between a queue and every fence associated with its
// submissions. It is destroyed when the last reference is released.
type Context struct {
	refs          atomic.Int32
	destroyed     atomic.Bool
	lastTimestamp atomic.Uint64
	allocator     alloc.Allocator
	conn          Conn
}

var contextSize = int(unsafe.Sizeof(Context{}))

var _ api.SubmissionContext = (*Context)(nil)

// New creates a Context owning conn, accounted against a. The returned
// context holds one reference for the caller.
func New(ctx context.Context, a alloc.Allocator, conn Conn) (*Context, error) {
	if err := a.Reserve(contextSize); err != nil {
		return nil, log.Err(ctx, api.ErrOutOfMemory, "Allocating submission context")
	}
	c := &Context{allocator: a, conn: conn}
	c.refs.Store(1)
	return c, nil
}

// TakeReference adds a reference. It never fails.
func (c *Context) TakeReference() {
	c.refs.Add(1)
}

// ReleaseReference drops a reference. Dropping the last reference closes the
// connection and returns the context to its allocator.
func (c *Context) ReleaseReference(ctx context.Context) {
	n := c.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0 || c.destroyed.Load():
		panic(fmt.Errorf("submission context released %d times too many", -n))
	}
	c.destroyed.Store(true)
	if c.conn != nil {
		if err := c.conn.Close(ctx); err != nil {
			log.W(ctx, "Closing scheduler connection: %v", err)
		}
	}
	c.allocator.Release(contextSize)
}

// RefCount returns the current number of references.
func (c *Context) RefCount() int { return int(c.refs.Load()) }

// Destroyed returns true once the last reference has been released.
func (c *Context) Destroyed() bool { return c.destroyed.Load() }

// LastTimestamp returns the timestamp of the most recent submission.
func (c *Context) LastTimestamp() uint64 { return c.lastTimestamp.Load() }

// SetLastTimestamp records the timestamp of the most recent submission.
func (c *Context) SetLastTimestamp(ts uint64) { c.lastTimestamp.Store(ts) }
