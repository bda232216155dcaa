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

// Package keys tracks which values have been stored on a context.Context so
// that a detached context can be rebuilt with the same values.
package keys

import "context"

type keySetType int

// keySet is the hidden key used to store the key chain on the context.
const keySet = keySetType(0)

// link is one entry in the chain of keys stored on a context.
type link struct {
	key  interface{}
	next *link
}

// WithValue stores value against key and records the key so that Clone can
// find it later.
func WithValue(ctx context.Context, key interface{}, value interface{}) context.Context {
	old, _ := ctx.Value(keySet).(*link)
	ctx = context.WithValue(ctx, key, value)
	return context.WithValue(ctx, keySet, &link{key: key, next: old})
}

// Get returns the distinct keys stored with WithValue, most recent first.
func Get(ctx context.Context) []interface{} {
	seen := map[interface{}]bool{}
	out := []interface{}{}
	for l, _ := ctx.Value(keySet).(*link); l != nil; l = l.next {
		if !seen[l.key] {
			seen[l.key] = true
			out = append(out, l.key)
		}
	}
	return out
}

// Clone copies every recorded value of from onto ctx.
// It is used to hand work to a goroutine that must outlive the cancellation
// of the caller's context while keeping its logging setup.
func Clone(ctx context.Context, from context.Context) context.Context {
	keys := Get(from)
	for i := len(keys) - 1; i >= 0; i-- {
		ctx = WithValue(ctx, keys[i], from.Value(keys[i]))
	}
	return ctx
}
